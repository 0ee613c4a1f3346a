package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/internal/realtime"
	apperrors "github.com/atelierhq/atelier/pkg/errors"
	"github.com/atelierhq/atelier/pkg/logger"
	"github.com/atelierhq/atelier/pkg/metrics"
)

// ErrTalkRequestNotFound indicates the talk request does not exist.
var ErrTalkRequestNotFound = apperrors.New("TALK_REQUEST_NOT_FOUND", "Talk request not found", http.StatusNotFound)

// TalkIntakeInput is the raw intake payload before normalisation.
type TalkIntakeInput struct {
	Name         string
	Email        string
	Phone        string
	Requirement  string
	Mode         string
	Immediate    bool
	ScheduledFor *time.Time
	// UserID is set when the submitter is signed in; intake is open to
	// anonymous visitors.
	UserID string
}

// ListTalkRequestsInput filters the admin listing.
type ListTalkRequestsInput struct {
	Status string
	Mode   string
	Limit  int
	Offset int
}

// ExpertPresence captures the availability flags fed to the status deriver.
type ExpertPresence struct {
	Offline bool
	Busy    bool
}

// DeriveTalkStatus computes the initial status for a new talk request.
// Rules apply first-match-wins and the ordering is load-bearing: a chat
// request while experts are offline goes async even when they are also busy.
func DeriveTalkStatus(mode string, immediate bool, presence ExpertPresence) string {
	switch {
	case mode == models.TalkModeChat && presence.Offline:
		return models.TalkStatusAsync
	case presence.Busy && immediate:
		return models.TalkStatusScheduled
	case !immediate:
		return models.TalkStatusScheduled
	default:
		return models.TalkStatusWaiting
	}
}

// TalkServiceOption customises the TalkService.
type TalkServiceOption func(*TalkService)

// WithTalkClock injects a custom time source.
func WithTalkClock(clock func() time.Time) TalkServiceOption {
	return func(s *TalkService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithTalkFanout controls whether admin fan-out runs synchronously. Tests
// disable the background dispatch to assert on the created rows.
func WithTalkFanout(async bool) TalkServiceOption {
	return func(s *TalkService) {
		s.asyncFanout = async
	}
}

// TalkService handles the talk-to-expert request lifecycle: intake, status
// derivation, transcript, and admin transitions.
type TalkService struct {
	db            *gorm.DB
	admins        AdminDirectory
	notifications *NotificationService
	hub           *realtime.Hub
	log           *zap.Logger
	now           func() time.Time
	asyncFanout   bool
}

// NewTalkService constructs a TalkService.
func NewTalkService(db *gorm.DB, admins AdminDirectory, notifications *NotificationService, hub *realtime.Hub, opts ...TalkServiceOption) (*TalkService, error) {
	if db == nil {
		return nil, errors.New("talk service: db is required")
	}
	if admins == nil {
		return nil, errors.New("talk service: admin directory is required")
	}

	service := &TalkService{
		db:            db,
		admins:        admins,
		notifications: notifications,
		hub:           hub,
		log:           logger.WithModule("talk"),
		now:           time.Now,
		asyncFanout:   true,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Presence resolves the expert availability flags from the admin directory.
// Experts count as offline only when nobody is online or busy; busy means the
// best case is a busy admin.
func (s *TalkService) Presence(ctx context.Context) (ExpertPresence, error) {
	ctx = ensureContext(ctx)

	anyOnline, err := s.admins.AnyAvailable(ctx, models.AvailabilityOnline)
	if err != nil {
		return ExpertPresence{}, err
	}
	anyBusy, err := s.admins.AnyAvailable(ctx, models.AvailabilityBusy)
	if err != nil {
		return ExpertPresence{}, err
	}

	return ExpertPresence{
		Offline: !anyOnline && !anyBusy,
		Busy:    !anyOnline && anyBusy,
	}, nil
}

// Submit validates an intake payload, derives the initial status, persists
// the request, and fans out admin notifications. Fan-out failures never fail
// the intake; the persisted row is the success criterion.
func (s *TalkService) Submit(ctx context.Context, input TalkIntakeInput) (*models.TalkRequest, error) {
	ctx = ensureContext(ctx)

	request, err := s.normalize(input)
	if err != nil {
		return nil, err
	}

	presence, err := s.Presence(ctx)
	if err != nil {
		return nil, fmt.Errorf("talk service: resolve presence: %w", err)
	}

	request.Status = DeriveTalkStatus(request.Mode, request.Immediate, presence)

	if err := s.db.WithContext(ctx).Create(request).Error; err != nil {
		return nil, fmt.Errorf("talk service: create request: %w", err)
	}

	metrics.TalkRequests.WithLabelValues(request.Status).Inc()

	fanout := func() {
		if s.notifications == nil {
			return
		}
		event := AdminEventInput{
			Type:     "talk.request.created",
			Title:    "New talk request",
			Message:  fmt.Sprintf("%s wants to talk via %s: %s", request.Name, request.Mode, request.Requirement),
			Severity: "info",
			Metadata: map[string]any{
				"request_id": request.ID,
				"mode":       request.Mode,
				"status":     request.Status,
				"immediate":  request.Immediate,
			},
			Email: true,
		}
		if err := s.notifications.NotifyAdmins(context.Background(), event); err != nil {
			s.log.Error("admin fan-out failed",
				zap.String("request_id", request.ID),
				zap.Error(err))
		}
	}

	if s.asyncFanout {
		go fanout()
	} else {
		fanout()
	}

	return request, nil
}

// Get loads a talk request with its transcript.
func (s *TalkService) Get(ctx context.Context, id string) (*models.TalkRequest, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.NewBadRequest("request id is required")
	}

	var request models.TalkRequest
	err := s.db.WithContext(ctx).
		Preload("Transcript", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Take(&request, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTalkRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("talk service: load request: %w", err)
	}

	return &request, nil
}

// List returns talk requests for the admin console, newest first.
func (s *TalkService) List(ctx context.Context, input ListTalkRequestsInput) ([]models.TalkRequest, int64, error) {
	ctx = ensureContext(ctx)

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Model(&models.TalkRequest{})
	if status := strings.TrimSpace(input.Status); status != "" {
		normalized, ok := models.NormalizeTalkStatus(status)
		if !ok {
			return nil, 0, apperrors.NewBadRequest("unknown status filter")
		}
		query = query.Where("status = ?", normalized)
	}
	if mode := strings.ToLower(strings.TrimSpace(input.Mode)); mode != "" {
		if !models.ValidTalkMode(mode) {
			return nil, 0, apperrors.NewBadRequest("unknown mode filter")
		}
		query = query.Where("mode = ?", mode)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("talk service: count requests: %w", err)
	}

	var requests []models.TalkRequest
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&requests).Error; err != nil {
		return nil, 0, fmt.Errorf("talk service: list requests: %w", err)
	}

	return requests, total, nil
}

// Transition moves a request to any status in the enumeration. Input is
// case-insensitive; no transition graph is enforced, an admin may set any
// value, including moving completed requests back to waiting.
func (s *TalkService) Transition(ctx context.Context, id, status string) (*models.TalkRequest, error) {
	ctx = ensureContext(ctx)

	normalized, ok := models.NormalizeTalkStatus(status)
	if !ok {
		return nil, apperrors.NewBadRequest("status must be one of waiting, scheduled, active, completed, async, cancelled")
	}

	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).
		Model(&models.TalkRequest{}).
		Where("id = ?", request.ID).
		Update("status", normalized).Error; err != nil {
		return nil, fmt.Errorf("talk service: update status: %w", err)
	}

	request.Status = normalized

	if s.hub != nil {
		s.hub.BroadcastStream(realtime.ScopedStream(realtime.StreamTalkChat, request.ID), realtime.Message{
			Event: "talk.status_changed",
			Data: map[string]any{
				"request_id": request.ID,
				"status":     normalized,
			},
		})
	}

	return request, nil
}

// AppendTranscript adds one transcript entry. Entries are separate rows, so
// concurrent appends interleave instead of overwriting each other.
func (s *TalkService) AppendTranscript(ctx context.Context, requestID, author, text string) (*models.TalkTranscriptEntry, error) {
	ctx = ensureContext(ctx)

	author = strings.TrimSpace(author)
	text = strings.TrimSpace(text)
	if author == "" {
		return nil, apperrors.NewBadRequest("author is required")
	}
	if text == "" {
		return nil, apperrors.NewBadRequest("text is required")
	}

	request, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	entry := &models.TalkTranscriptEntry{
		RequestID: request.ID,
		Author:    author,
		Text:      text,
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("talk service: append transcript: %w", err)
	}

	if s.hub != nil {
		s.hub.BroadcastStream(realtime.ScopedStream(realtime.StreamTalkChat, request.ID), realtime.Message{
			Event: "talk.message",
			Data:  entry,
		})
	}

	return entry, nil
}

// normalize validates and trims the intake payload into a persistable record.
func (s *TalkService) normalize(input TalkIntakeInput) (*models.TalkRequest, error) {
	mode := strings.ToLower(strings.TrimSpace(input.Mode))
	if !models.ValidTalkMode(mode) {
		return nil, apperrors.NewBadRequest("mode must be one of phone, video, chat, schedule")
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}

	requirement := strings.TrimSpace(input.Requirement)
	if requirement == "" {
		return nil, apperrors.NewBadRequest("requirement is required")
	}

	email := normalizeEmail(input.Email)
	if mode == models.TalkModeChat && email == "" {
		return nil, apperrors.NewBadRequest("email is required for chat requests")
	}

	request := &models.TalkRequest{
		Name:        name,
		Email:       email,
		Phone:       strings.TrimSpace(input.Phone),
		Requirement: requirement,
		Mode:        mode,
		Immediate:   input.Immediate,
	}

	if input.Immediate {
		// scheduledFor carries no meaning for immediate requests.
		request.ScheduledFor = nil
	} else {
		if input.ScheduledFor == nil {
			return nil, apperrors.NewBadRequest("scheduled_for is required when immediate is false")
		}
		scheduled := input.ScheduledFor.UTC()
		request.ScheduledFor = &scheduled
	}

	if userID := strings.TrimSpace(input.UserID); userID != "" {
		request.UserID = &userID
	}

	return request, nil
}
