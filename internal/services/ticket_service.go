package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/models"
	apperrors "github.com/atelierhq/atelier/pkg/errors"
)

// ErrTicketNotFound indicates the ticket does not exist or is hidden from the caller.
var ErrTicketNotFound = apperrors.New("TICKET_NOT_FOUND", "Ticket not found", http.StatusNotFound)

// CreateTicketInput describes a new support request.
type CreateTicketInput struct {
	Subject  string
	Body     string
	Priority string
}

// ListTicketsInput filters the ticket listing.
type ListTicketsInput struct {
	Status string
	Limit  int
	Offset int
}

// TicketService manages support tickets and their reply threads.
type TicketService struct {
	db            *gorm.DB
	notifications *NotificationService
}

// NewTicketService constructs a TicketService. Notifications are optional.
func NewTicketService(db *gorm.DB, notifications *NotificationService) (*TicketService, error) {
	if db == nil {
		return nil, errors.New("ticket service: db is required")
	}
	return &TicketService{db: db, notifications: notifications}, nil
}

// Create opens a new ticket and fans out an admin notification.
func (s *TicketService) Create(ctx context.Context, actor Actor, input CreateTicketInput) (*models.SupportTicket, error) {
	ctx = ensureContext(ctx)

	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, apperrors.NewBadRequest("subject is required")
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, apperrors.NewBadRequest("body is required")
	}

	priority := strings.ToLower(strings.TrimSpace(input.Priority))
	switch priority {
	case "":
		priority = models.TicketPriorityNormal
	case models.TicketPriorityLow, models.TicketPriorityNormal, models.TicketPriorityHigh:
	default:
		return nil, apperrors.NewBadRequest("priority must be one of low, normal, high")
	}

	ticket := &models.SupportTicket{
		UserID:   actor.UserID,
		Subject:  subject,
		Body:     body,
		Status:   models.TicketStatusOpen,
		Priority: priority,
	}

	if err := s.db.WithContext(ctx).Create(ticket).Error; err != nil {
		return nil, fmt.Errorf("ticket service: create ticket: %w", err)
	}

	if s.notifications != nil {
		go func() {
			_ = s.notifications.NotifyAdmins(context.Background(), AdminEventInput{
				Type:     "ticket.created",
				Title:    "New support ticket",
				Message:  subject,
				Severity: "info",
				Metadata: map[string]any{"ticket_id": ticket.ID, "priority": priority},
				Email:    true,
			})
		}()
	}

	return ticket, nil
}

// Get loads a ticket and its replies, enforcing ownership for non-admins.
func (s *TicketService) Get(ctx context.Context, actor Actor, ticketID string) (*models.SupportTicket, error) {
	ctx = ensureContext(ctx)
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, apperrors.NewBadRequest("ticket id is required")
	}

	var ticket models.SupportTicket
	err := s.db.WithContext(ctx).
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Replies.Author").
		Take(&ticket, "id = ?", ticketID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ticket service: load ticket: %w", err)
	}

	if !actor.IsAdmin && ticket.UserID != actor.UserID {
		return nil, ErrTicketNotFound
	}

	return &ticket, nil
}

// List returns tickets visible to the actor, newest first.
func (s *TicketService) List(ctx context.Context, actor Actor, input ListTicketsInput) ([]models.SupportTicket, int64, error) {
	ctx = ensureContext(ctx)

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Model(&models.SupportTicket{})
	if !actor.IsAdmin {
		query = query.Where("user_id = ?", actor.UserID)
	}
	if status := strings.TrimSpace(input.Status); status != "" {
		if !models.ValidTicketStatus(status) {
			return nil, 0, apperrors.NewBadRequest("unknown status filter")
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ticket service: count tickets: %w", err)
	}

	var tickets []models.SupportTicket
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&tickets).Error; err != nil {
		return nil, 0, fmt.Errorf("ticket service: list tickets: %w", err)
	}

	return tickets, total, nil
}

// Reply appends a message to a ticket thread. Replying to a closed ticket
// reopens it when the author is the customer.
func (s *TicketService) Reply(ctx context.Context, actor Actor, ticketID, body string) (*models.TicketReply, error) {
	ctx = ensureContext(ctx)

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewBadRequest("body is required")
	}

	ticket, err := s.Get(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}

	reply := &models.TicketReply{
		TicketID: ticket.ID,
		AuthorID: actor.UserID,
		Body:     body,
	}

	if err := s.db.WithContext(ctx).Create(reply).Error; err != nil {
		return nil, fmt.Errorf("ticket service: create reply: %w", err)
	}

	if !actor.IsAdmin && ticket.Status == models.TicketStatusClosed {
		if err := s.db.WithContext(ctx).
			Model(&models.SupportTicket{}).
			Where("id = ?", ticket.ID).
			Update("status", models.TicketStatusOpen).Error; err != nil {
			return nil, fmt.Errorf("ticket service: reopen ticket: %w", err)
		}
	}

	if s.notifications != nil && !actor.IsAdmin {
		go func() {
			_ = s.notifications.NotifyAdmins(context.Background(), AdminEventInput{
				Type:     "ticket.replied",
				Title:    "Ticket reply",
				Message:  fmt.Sprintf("New reply on ticket: %s", ticket.Subject),
				Metadata: map[string]any{"ticket_id": ticket.ID},
			})
		}()
	}
	if s.notifications != nil && actor.IsAdmin && ticket.UserID != actor.UserID {
		go func() {
			_, _ = s.notifications.Create(context.Background(), CreateNotificationInput{
				UserID:   ticket.UserID,
				Type:     "ticket.replied",
				Title:    "Support replied to your ticket",
				Message:  ticket.Subject,
				Metadata: map[string]any{"ticket_id": ticket.ID},
			})
		}()
	}

	return reply, nil
}

// UpdateStatus moves a ticket through its status set. Admin only.
func (s *TicketService) UpdateStatus(ctx context.Context, actor Actor, ticketID, status string) (*models.SupportTicket, error) {
	ctx = ensureContext(ctx)
	if !actor.IsAdmin {
		return nil, apperrors.ErrForbidden
	}

	status = strings.ToLower(strings.TrimSpace(status))
	if !models.ValidTicketStatus(status) {
		return nil, apperrors.NewBadRequest("status must be one of open, in_progress, resolved, closed")
	}

	ticket, err := s.Get(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).
		Model(&models.SupportTicket{}).
		Where("id = ?", ticket.ID).
		Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("ticket service: update status: %w", err)
	}

	ticket.Status = status
	return ticket, nil
}
