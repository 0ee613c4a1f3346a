package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/internal/payments"
	"github.com/atelierhq/atelier/pkg/crypto"
	apperrors "github.com/atelierhq/atelier/pkg/errors"
	"github.com/atelierhq/atelier/pkg/logger"
	"github.com/atelierhq/atelier/pkg/metrics"
)

var (
	// ErrInvoiceNotFound indicates the invoice does not exist or is hidden from the caller.
	ErrInvoiceNotFound = apperrors.New("INVOICE_NOT_FOUND", "Invoice not found", http.StatusNotFound)
	// ErrInvoiceNotPayable indicates the invoice status does not permit checkout.
	ErrInvoiceNotPayable = apperrors.New("INVOICE_NOT_PAYABLE", "Invoice cannot be paid in its current status", http.StatusBadRequest)
	// ErrPaymentsDisabled indicates no payment processor is configured.
	ErrPaymentsDisabled = apperrors.New("PAYMENTS_DISABLED", "Online payment is not available", http.StatusServiceUnavailable)
)

// AmountToCents converts a decimal currency amount to integer cents,
// rounding half away from zero.
func AmountToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CreateInvoiceInput describes a new invoice.
type CreateInvoiceInput struct {
	ProjectID   string
	Description string
	AmountCents int64
	Currency    string
}

// ListInvoicesInput filters invoice listings.
type ListInvoicesInput struct {
	Status string
	Limit  int
	Offset int
}

// InvoiceServiceOption customises the InvoiceService.
type InvoiceServiceOption func(*InvoiceService)

// WithInvoiceClock injects a custom time source.
func WithInvoiceClock(clock func() time.Time) InvoiceServiceOption {
	return func(s *InvoiceService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InvoiceService manages billing: invoice lifecycle, hosted checkout, and
// webhook reconciliation.
type InvoiceService struct {
	db            *gorm.DB
	projects      *ProjectService
	processor     *payments.Processor
	notifications *NotificationService
	log           *zap.Logger
	now           func() time.Time
}

// NewInvoiceService constructs an InvoiceService. The processor is optional;
// without it invoices are payable only out of band.
func NewInvoiceService(db *gorm.DB, projects *ProjectService, processor *payments.Processor, notifications *NotificationService, opts ...InvoiceServiceOption) (*InvoiceService, error) {
	if db == nil {
		return nil, errors.New("invoice service: db is required")
	}
	if projects == nil {
		return nil, errors.New("invoice service: project service is required")
	}

	service := &InvoiceService{
		db:            db,
		projects:      projects,
		processor:     processor,
		notifications: notifications,
		log:           logger.WithModule("invoices"),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Create issues a new invoice against a project. Admin only.
func (s *InvoiceService) Create(ctx context.Context, actor Actor, input CreateInvoiceInput) (*models.Invoice, error) {
	ctx = ensureContext(ctx)
	if !actor.IsAdmin {
		return nil, apperrors.ErrForbidden
	}

	if input.AmountCents <= 0 {
		return nil, apperrors.NewBadRequest("amount_cents must be positive")
	}

	project, err := s.projects.EnsureAccess(ctx, actor, input.ProjectID)
	if err != nil {
		return nil, err
	}

	number, err := s.nextNumber()
	if err != nil {
		return nil, err
	}

	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "usd"
	}

	invoice := &models.Invoice{
		ProjectID:   project.ID,
		ClientID:    project.ClientID,
		Number:      number,
		Description: strings.TrimSpace(input.Description),
		AmountCents: input.AmountCents,
		Currency:    currency,
		Status:      models.InvoiceStatusDraft,
	}

	if err := s.db.WithContext(ctx).Create(invoice).Error; err != nil {
		return nil, fmt.Errorf("invoice service: create invoice: %w", err)
	}

	return invoice, nil
}

// Send marks a draft invoice as sent and notifies the client. Admin only.
func (s *InvoiceService) Send(ctx context.Context, actor Actor, invoiceID string) (*models.Invoice, error) {
	ctx = ensureContext(ctx)
	if !actor.IsAdmin {
		return nil, apperrors.ErrForbidden
	}

	invoice, err := s.Get(ctx, actor, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.InvoiceStatusDraft {
		return nil, apperrors.NewBadRequest("only draft invoices can be sent")
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", invoice.ID).
		Update("status", models.InvoiceStatusSent).Error; err != nil {
		return nil, fmt.Errorf("invoice service: mark sent: %w", err)
	}
	invoice.Status = models.InvoiceStatusSent

	if s.notifications != nil {
		go func() {
			_, _ = s.notifications.Create(context.Background(), CreateNotificationInput{
				UserID:   invoice.ClientID,
				Type:     "invoice.sent",
				Title:    "New invoice",
				Message:  fmt.Sprintf("Invoice %s is ready for payment", invoice.Number),
				Metadata: map[string]any{"invoice_id": invoice.ID},
			})
		}()
	}

	return invoice, nil
}

// Get loads an invoice, enforcing ownership for non-admins.
func (s *InvoiceService) Get(ctx context.Context, actor Actor, invoiceID string) (*models.Invoice, error) {
	ctx = ensureContext(ctx)
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, apperrors.NewBadRequest("invoice id is required")
	}

	var invoice models.Invoice
	err := s.db.WithContext(ctx).Take(&invoice, "id = ?", invoiceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invoice service: load invoice: %w", err)
	}

	if !actor.IsAdmin && invoice.ClientID != actor.UserID {
		return nil, ErrInvoiceNotFound
	}

	return &invoice, nil
}

// List returns invoices visible to the actor, newest first.
func (s *InvoiceService) List(ctx context.Context, actor Actor, input ListInvoicesInput) ([]models.Invoice, int64, error) {
	ctx = ensureContext(ctx)

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Model(&models.Invoice{})
	if !actor.IsAdmin {
		query = query.Where("client_id = ?", actor.UserID)
	}
	if status := strings.TrimSpace(input.Status); status != "" {
		switch status {
		case models.InvoiceStatusDraft, models.InvoiceStatusSent, models.InvoiceStatusPaid,
			models.InvoiceStatusFailed, models.InvoiceStatusVoid:
		default:
			return nil, 0, apperrors.NewBadRequest("unknown status filter")
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("invoice service: count invoices: %w", err)
	}

	var invoices []models.Invoice
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&invoices).Error; err != nil {
		return nil, 0, fmt.Errorf("invoice service: list invoices: %w", err)
	}

	return invoices, total, nil
}

// CreateCheckout opens a hosted checkout session for a sent or failed invoice.
func (s *InvoiceService) CreateCheckout(ctx context.Context, actor Actor, invoiceID string) (*payments.CheckoutSession, error) {
	ctx = ensureContext(ctx)

	if s.processor == nil {
		return nil, ErrPaymentsDisabled
	}

	invoice, err := s.Get(ctx, actor, invoiceID)
	if err != nil {
		return nil, err
	}

	switch invoice.Status {
	case models.InvoiceStatusSent, models.InvoiceStatusFailed:
	default:
		return nil, ErrInvoiceNotPayable
	}

	var client models.User
	if err := s.db.WithContext(ctx).Take(&client, "id = ?", invoice.ClientID).Error; err != nil {
		return nil, fmt.Errorf("invoice service: load client: %w", err)
	}

	session, err := s.processor.CreateCheckoutSession(payments.CheckoutInput{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.Number,
		AmountCents:   invoice.AmountCents,
		Currency:      invoice.Currency,
		Description:   invoice.Description,
		CustomerEmail: client.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("invoice service: create checkout: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", invoice.ID).
		Update("checkout_session_id", session.ID).Error; err != nil {
		return nil, fmt.Errorf("invoice service: record checkout session: %w", err)
	}

	return session, nil
}

// HandleWebhook verifies and applies a payment provider event. When no
// webhook secret is configured the delivery degrades to a logged no-op so the
// provider does not retry against a half-configured deployment.
func (s *InvoiceService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	ctx = ensureContext(ctx)

	if s.processor == nil || !s.processor.WebhookConfigured() {
		metrics.WebhookEvents.WithLabelValues("unknown", "skipped").Inc()
		s.log.Warn("webhook received without configured secret, ignoring")
		return nil
	}

	event, err := s.processor.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		return apperrors.New("WEBHOOK_INVALID", "Webhook signature verification failed", http.StatusBadRequest).WithInternal(err)
	}

	switch event.Type {
	case payments.EventCheckoutCompleted:
		return s.applyCheckoutEvent(ctx, event, models.InvoiceStatusPaid)
	case payments.EventCheckoutExpired, payments.EventPaymentFailed:
		return s.applyCheckoutEvent(ctx, event, models.InvoiceStatusFailed)
	default:
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "ignored").Inc()
		return nil
	}
}

func (s *InvoiceService) applyCheckoutEvent(ctx context.Context, event stripe.Event, status string) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "malformed").Inc()
		return fmt.Errorf("invoice service: decode event payload: %w", err)
	}

	var invoice models.Invoice
	err := s.db.WithContext(ctx).
		Take(&invoice, "checkout_session_id = ?", session.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "unmatched").Inc()
		s.log.Warn("webhook for unknown checkout session", zap.String("session_id", session.ID))
		return nil
	}
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "error").Inc()
		return fmt.Errorf("invoice service: find invoice by session: %w", err)
	}

	updates := map[string]any{"status": status}
	if status == models.InvoiceStatusPaid {
		now := s.now().UTC()
		updates["paid_at"] = &now
	}

	if err := s.db.WithContext(ctx).Model(&invoice).Updates(updates).Error; err != nil {
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "error").Inc()
		return fmt.Errorf("invoice service: apply webhook: %w", err)
	}

	metrics.WebhookEvents.WithLabelValues(string(event.Type), "applied").Inc()

	if s.notifications != nil {
		title := "Payment received"
		message := fmt.Sprintf("Invoice %s has been paid", invoice.Number)
		if status == models.InvoiceStatusFailed {
			title = "Payment failed"
			message = fmt.Sprintf("Payment for invoice %s did not complete", invoice.Number)
		}
		go func() {
			_, _ = s.notifications.Create(context.Background(), CreateNotificationInput{
				UserID:   invoice.ClientID,
				Type:     "invoice." + status,
				Title:    title,
				Message:  message,
				Metadata: map[string]any{"invoice_id": invoice.ID},
			})
		}()
	}

	return nil
}

// nextNumber derives a unique human-readable invoice number.
func (s *InvoiceService) nextNumber() (string, error) {
	suffix, err := crypto.GenerateNumericCode(6)
	if err != nil {
		return "", fmt.Errorf("invoice service: generate number: %w", err)
	}
	return fmt.Sprintf("INV-%s-%s", s.now().UTC().Format("200601"), suffix), nil
}
