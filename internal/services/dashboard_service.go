package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/models"
)

// DashboardStats aggregates the counters shown on the admin console.
type DashboardStats struct {
	Clients         int64 `json:"clients"`
	ActiveProjects  int64 `json:"active_projects"`
	OpenTickets     int64 `json:"open_tickets"`
	WaitingTalks    int64 `json:"waiting_talks"`
	UnpaidInvoices  int64 `json:"unpaid_invoices"`
	UnpaidCents     int64 `json:"unpaid_cents"`
	PaidCents30Days int64 `json:"paid_cents_30_days"`
	SignupsLast7    int64 `json:"signups_last_7_days"`
}

// DashboardService computes admin console aggregates.
type DashboardService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(db *gorm.DB) (*DashboardService, error) {
	if db == nil {
		return nil, errors.New("dashboard service: db is required")
	}
	return &DashboardService{db: db, now: time.Now}, nil
}

// Stats gathers the current dashboard counters.
func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	ctx = ensureContext(ctx)

	stats := &DashboardStats{}
	now := s.now().UTC()

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&stats.Clients, s.db.WithContext(ctx).Model(&models.User{}).
			Where("is_admin = ? AND is_active = ?", false, true)},
		{&stats.ActiveProjects, s.db.WithContext(ctx).Model(&models.Project{}).
			Where("status = ?", models.ProjectStatusActive)},
		{&stats.OpenTickets, s.db.WithContext(ctx).Model(&models.SupportTicket{}).
			Where("status IN ?", []string{models.TicketStatusOpen, models.TicketStatusInProgress})},
		{&stats.WaitingTalks, s.db.WithContext(ctx).Model(&models.TalkRequest{}).
			Where("status IN ?", []string{models.TalkStatusWaiting, models.TalkStatusScheduled})},
		{&stats.UnpaidInvoices, s.db.WithContext(ctx).Model(&models.Invoice{}).
			Where("status IN ?", []string{models.InvoiceStatusSent, models.InvoiceStatusFailed})},
		{&stats.SignupsLast7, s.db.WithContext(ctx).Model(&models.User{}).
			Where("created_at > ?", now.AddDate(0, 0, -7))},
	}

	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("dashboard service: count: %w", err)
		}
	}

	type sumRow struct {
		Total int64
	}

	var unpaid sumRow
	if err := s.db.WithContext(ctx).Model(&models.Invoice{}).
		Select("COALESCE(SUM(amount_cents), 0) AS total").
		Where("status IN ?", []string{models.InvoiceStatusSent, models.InvoiceStatusFailed}).
		Scan(&unpaid).Error; err != nil {
		return nil, fmt.Errorf("dashboard service: sum unpaid: %w", err)
	}
	stats.UnpaidCents = unpaid.Total

	var paid sumRow
	if err := s.db.WithContext(ctx).Model(&models.Invoice{}).
		Select("COALESCE(SUM(amount_cents), 0) AS total").
		Where("status = ? AND paid_at > ?", models.InvoiceStatusPaid, now.AddDate(0, 0, -30)).
		Scan(&paid).Error; err != nil {
		return nil, fmt.Errorf("dashboard service: sum paid: %w", err)
	}
	stats.PaidCents30Days = paid.Total

	return stats, nil
}
