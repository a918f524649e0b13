package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"project-chat/internal/models"
)

const projectCachePrefix = "project-chat:project:"

type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedProjectRepo serves project lookups from Redis and falls back to next.
// Misses are not cached so a freshly created project is visible immediately.
type CachedProjectRepo struct {
	next   ProjectRepository
	cache  cacheClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProjectRepo wraps next with a Redis read-through cache.
func NewCachedProjectRepo(next ProjectRepository, cache cacheClient, ttl time.Duration, logger *zap.Logger) *CachedProjectRepo {
	return &CachedProjectRepo{next: next, cache: cache, ttl: ttl, logger: logger}
}

// GetProject returns the cached project or loads and caches it.
func (r *CachedProjectRepo) GetProject(ctx context.Context, projectID uuid.UUID) (models.Project, error) {
	key := projectCachePrefix + projectID.String()

	raw, err := r.cache.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var project models.Project
		if jsonErr := json.Unmarshal(raw, &project); jsonErr == nil {
			return project, nil
		}
		r.logger.Warn("discarding undecodable cached project", zap.String("project_id", projectID.String()))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("project cache read failed", zap.String("project_id", projectID.String()), zap.Error(err))
	}

	project, err := r.next.GetProject(ctx, projectID)
	if err != nil {
		return models.Project{}, err
	}

	if payload, err := json.Marshal(project); err == nil {
		if err := r.cache.Set(ctx, key, payload, r.ttl).Err(); err != nil {
			r.logger.Warn("project cache write failed", zap.String("project_id", projectID.String()), zap.Error(err))
		}
	}
	return project, nil
}
