package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/internal/realtime"
	apperrors "github.com/atelierhq/atelier/pkg/errors"
	"github.com/atelierhq/atelier/pkg/logger"
	"github.com/atelierhq/atelier/pkg/mail"
	"github.com/atelierhq/atelier/pkg/metrics"
)

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID   string
	Type     string
	Title    string
	Message  string
	Severity string
	Metadata map[string]any
}

// AdminEventInput describes an event fanned out to every administrator.
type AdminEventInput struct {
	Type     string
	Title    string
	Message  string
	Severity string
	Metadata map[string]any
	// Email controls whether admins also receive a batched email.
	Email bool
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationService manages in-app notifications and admin fan-out.
type NotificationService struct {
	db     *gorm.DB
	hub    *realtime.Hub
	admins AdminDirectory
	mailer mail.Mailer
	log    *zap.Logger
}

// NewNotificationService constructs a NotificationService. The hub and mailer
// are optional; fan-out degrades to database rows when they are absent.
func NewNotificationService(db *gorm.DB, admins AdminDirectory, hub *realtime.Hub, mailer mail.Mailer) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	if admins == nil {
		return nil, errors.New("notification service: admin directory is required")
	}
	return &NotificationService{
		db:     db,
		hub:    hub,
		admins: admins,
		mailer: mailer,
		log:    logger.WithModule("notifications"),
	}, nil
}

// Create registers a notification for a single user and broadcasts it.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}
	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return nil, errors.New("notification service: type is required")
	}

	notification := models.Notification{
		UserID:   userID,
		Type:     notificationType,
		Title:    strings.TrimSpace(input.Title),
		Message:  strings.TrimSpace(input.Message),
		Severity: defaultIfEmpty(input.Severity, "info"),
	}

	if input.Metadata != nil {
		data, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal metadata: %w", err)
		}
		notification.Metadata = datatypes.JSON(data)
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	s.broadcast(userID, "notification.created", &notification)
	return &notification, nil
}

// NotifyAdmins creates one notification row per administrator, broadcasts to
// each, and optionally sends a single batched email. Email delivery failures
// are logged rather than propagated; the persisted rows are the source of
// truth.
func (s *NotificationService) NotifyAdmins(ctx context.Context, input AdminEventInput) error {
	ctx = ensureContext(ctx)

	admins, err := s.admins.Admins(ctx)
	if err != nil {
		metrics.NotificationFanouts.WithLabelValues("error").Inc()
		return err
	}

	if len(admins) == 0 {
		metrics.NotificationFanouts.WithLabelValues("no_admins").Inc()
		s.log.Warn("admin fan-out skipped, no active admins", zap.String("type", input.Type))
		return nil
	}

	var metadata datatypes.JSON
	if input.Metadata != nil {
		data, err := json.Marshal(input.Metadata)
		if err != nil {
			return fmt.Errorf("notification service: marshal metadata: %w", err)
		}
		metadata = datatypes.JSON(data)
	}

	rows := make([]models.Notification, 0, len(admins))
	for _, admin := range admins {
		rows = append(rows, models.Notification{
			UserID:   admin.ID,
			Type:     strings.TrimSpace(input.Type),
			Title:    strings.TrimSpace(input.Title),
			Message:  strings.TrimSpace(input.Message),
			Severity: defaultIfEmpty(input.Severity, "info"),
			Metadata: metadata,
		})
	}

	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		metrics.NotificationFanouts.WithLabelValues("error").Inc()
		return fmt.Errorf("notification service: fan out to admins: %w", err)
	}

	for i := range rows {
		s.broadcast(rows[i].UserID, "notification.created", &rows[i])
	}

	if input.Email && s.mailer != nil {
		recipients := make([]string, 0, len(admins))
		for _, admin := range admins {
			recipients = append(recipients, admin.Email)
		}
		message := mail.Message{
			To:      recipients,
			Subject: defaultIfEmpty(input.Title, "Atelier notification"),
			Body:    input.Message,
		}
		if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrSMTPDisabled) {
			s.log.Warn("admin fan-out email failed",
				zap.String("type", input.Type),
				zap.Error(mailErr))
		}
	}

	metrics.NotificationFanouts.WithLabelValues("success").Inc()
	return nil
}

// ListForUser returns notifications for the supplied user ordered by recency.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]models.Notification, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}

	return rows, nil
}

// UnreadCount returns the number of unread notifications for a user.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: unread count: %w", err)
	}

	return count, nil
}

// MarkRead sets the read flag on a notification. Marking an already-read
// notification succeeds without changing its read timestamp.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	var notification models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}

	if notification.IsRead {
		return &notification, nil
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&notification).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}

	notification.IsRead = true
	notification.ReadAt = &now

	s.broadcast(userID, "notification.read", &notification)
	return &notification, nil
}

// MarkAllRead marks every unread notification for the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()

	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return fmt.Errorf("notification service: mark all read: %w", err)
	}

	if s.hub != nil {
		s.hub.BroadcastToUser(realtime.StreamNotifications, userID, realtime.Message{
			Stream: realtime.StreamNotifications,
			Event:  "notification.read_all",
		})
	}
	return nil
}

// Delete removes a notification owned by the supplied user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// CleanupRead removes read notifications older than the provided age.
func (s *NotificationService) CleanupRead(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx = ensureContext(ctx)
	cutoff := time.Now().UTC().Add(-olderThan)

	result := s.db.WithContext(ctx).
		Where("is_read = ? AND read_at < ?", true, cutoff).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: cleanup read: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func (s *NotificationService) broadcast(userID, event string, notification *models.Notification) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToUser(realtime.StreamNotifications, userID, realtime.Message{
		Stream: realtime.StreamNotifications,
		Event:  event,
		Data:   notification,
	})
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
