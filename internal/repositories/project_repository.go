package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"project-chat/internal/models"
)

var ErrProjectNotFound = errors.New("project not found")

// ProjectRepository looks up projects.
type ProjectRepository interface {
	GetProject(ctx context.Context, projectID uuid.UUID) (models.Project, error)
}

// ProjectRepo is a sqlx implementation of ProjectRepository.
type ProjectRepo struct {
	db *sqlx.DB
}

// NewProjectRepo constructs a ProjectRepo.
func NewProjectRepo(db *sqlx.DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

// GetProject fetches a project by id.
func (r *ProjectRepo) GetProject(ctx context.Context, projectID uuid.UUID) (models.Project, error) {
	var project models.Project
	err := r.db.GetContext(ctx, &project, `SELECT id, name, owner_id, created_at FROM projects WHERE id=$1`, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, ErrProjectNotFound
	}
	return project, err
}
