package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/internal/realtime"
	apperrors "github.com/atelierhq/atelier/pkg/errors"
)

// MessageService handles the per-project discussion thread. Messages are
// append-only; broadcast failures never fail the post.
type MessageService struct {
	db       *gorm.DB
	projects *ProjectService
	hub      *realtime.Hub
}

// NewMessageService constructs a MessageService.
func NewMessageService(db *gorm.DB, projects *ProjectService, hub *realtime.Hub) (*MessageService, error) {
	if db == nil {
		return nil, errors.New("message service: db is required")
	}
	if projects == nil {
		return nil, errors.New("message service: project service is required")
	}
	return &MessageService{db: db, projects: projects, hub: hub}, nil
}

// Post appends a message to a project thread and broadcasts it.
func (s *MessageService) Post(ctx context.Context, actor Actor, projectID, body string) (*models.ProjectMessage, error) {
	ctx = ensureContext(ctx)

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewBadRequest("body is required")
	}

	project, err := s.projects.EnsureAccess(ctx, actor, projectID)
	if err != nil {
		return nil, err
	}

	message := &models.ProjectMessage{
		ProjectID: project.ID,
		AuthorID:  actor.UserID,
		Body:      body,
	}

	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, fmt.Errorf("message service: create message: %w", err)
	}

	if s.hub != nil {
		s.hub.BroadcastStream(realtime.ScopedStream(realtime.StreamProjectMessages, project.ID), realtime.Message{
			Event: "message.created",
			Data:  message,
		})
	}

	return message, nil
}

// List returns messages for a project thread, oldest first.
func (s *MessageService) List(ctx context.Context, actor Actor, projectID string, limit, offset int) ([]models.ProjectMessage, error) {
	ctx = ensureContext(ctx)

	project, err := s.projects.EnsureAccess(ctx, actor, projectID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var messages []models.ProjectMessage
	if err := s.db.WithContext(ctx).
		Preload("Author").
		Where("project_id = ?", project.ID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("message service: list messages: %w", err)
	}

	return messages, nil
}

// NotifyTyping broadcasts a transient typing indicator without persistence.
func (s *MessageService) NotifyTyping(ctx context.Context, actor Actor, projectID string) error {
	ctx = ensureContext(ctx)

	project, err := s.projects.EnsureAccess(ctx, actor, projectID)
	if err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastStream(realtime.ScopedStream(realtime.StreamProjectMessages, project.ID), realtime.Message{
			Event: "message.typing",
			Data:  map[string]any{"user_id": actor.UserID},
		})
	}

	return nil
}
