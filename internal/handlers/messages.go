package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"project-chat/internal/models"
	"project-chat/internal/repositories"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

// MessageHandler serves project chat history.
type MessageHandler struct {
	projects repositories.ProjectRepository
	messages repositories.MessageRepository
	logger   *zap.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(projects repositories.ProjectRepository, messages repositories.MessageRepository, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{projects: projects, messages: messages, logger: logger}
}

// GetProjectMessages returns the latest messages of a project, oldest first.
func (h *MessageHandler) GetProjectMessages(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("project_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
	}

	project, err := h.projects.GetProject(c.Request.Context(), projectID)
	if errors.Is(err, repositories.ErrProjectNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if err != nil {
		h.logger.Error("load project failed", zap.String("project_id", projectID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project"})
		return
	}

	msgs, err := h.messages.ListConversationMessages(c.Request.Context(), project.RoomID(), int64(limit))
	if err != nil {
		h.logger.Error("load messages failed", zap.String("project_id", projectID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
