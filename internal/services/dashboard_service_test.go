package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/atelierhq/atelier/internal/database/testutil"
	"github.com/atelierhq/atelier/internal/models"
)

func TestDashboardStats(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	svc, err := NewDashboardService(db)
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	client := &models.User{Name: "Client", Email: "client@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(client).Error)
	admin := &models.User{Name: "Admin", Email: "admin@example.com", Password: "x", IsAdmin: true, IsActive: true}
	require.NoError(t, db.Create(admin).Error)
	inactive := &models.User{Name: "Gone", Email: "gone@example.com", Password: "x", IsActive: false}
	require.NoError(t, db.Create(inactive).Error)

	require.NoError(t, db.Create(&models.Project{
		ClientID: client.ID, Name: "Active work", Status: models.ProjectStatusActive,
	}).Error)
	require.NoError(t, db.Create(&models.Project{
		ClientID: client.ID, Name: "Parked", Status: models.ProjectStatusDraft,
	}).Error)

	require.NoError(t, db.Create(&models.SupportTicket{
		UserID: client.ID, Subject: "Login broken", Body: "Cannot sign in", Status: models.TicketStatusOpen, Priority: models.TicketPriorityNormal,
	}).Error)
	require.NoError(t, db.Create(&models.SupportTicket{
		UserID: client.ID, Subject: "Old issue", Body: "Resolved ages ago", Status: models.TicketStatusClosed, Priority: models.TicketPriorityNormal,
	}).Error)

	require.NoError(t, db.Create(&models.TalkRequest{
		Name: "Prospect", Requirement: "Need an estimate", Mode: models.TalkModeChat, Status: models.TalkStatusWaiting,
	}).Error)
	require.NoError(t, db.Create(&models.TalkRequest{
		Name: "Done", Requirement: "Finished", Mode: models.TalkModeChat, Status: models.TalkStatusCompleted,
	}).Error)

	paidAt := now.AddDate(0, 0, -5)
	stale := now.AddDate(0, 0, -45)
	require.NoError(t, db.Create(&models.Invoice{
		ProjectID: "project-1", ClientID: client.ID, Number: "INV-0001", AmountCents: 120_000, Currency: "eur", Status: models.InvoiceStatusSent,
	}).Error)
	require.NoError(t, db.Create(&models.Invoice{
		ProjectID: "project-1", ClientID: client.ID, Number: "INV-0002", AmountCents: 80_000, Currency: "eur", Status: models.InvoiceStatusFailed,
	}).Error)
	require.NoError(t, db.Create(&models.Invoice{
		ProjectID: "project-1", ClientID: client.ID, Number: "INV-0003", AmountCents: 50_000, Currency: "eur", Status: models.InvoiceStatusPaid, PaidAt: &paidAt,
	}).Error)
	require.NoError(t, db.Create(&models.Invoice{
		ProjectID: "project-1", ClientID: client.ID, Number: "INV-0004", AmountCents: 90_000, Currency: "eur", Status: models.InvoiceStatusPaid, PaidAt: &stale,
	}).Error)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)

	require.EqualValues(t, 1, stats.Clients)
	require.EqualValues(t, 1, stats.ActiveProjects)
	require.EqualValues(t, 1, stats.OpenTickets)
	require.EqualValues(t, 1, stats.WaitingTalks)
	require.EqualValues(t, 2, stats.UnpaidInvoices)
	require.EqualValues(t, 200_000, stats.UnpaidCents)
	require.EqualValues(t, 50_000, stats.PaidCents30Days)
	require.EqualValues(t, 3, stats.SignupsLast7)
}

func TestDashboardStatsEmptyDatabase(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	svc, err := NewDashboardService(db)
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.UnpaidCents)
	require.Zero(t, stats.Clients)
	require.Zero(t, stats.PaidCents30Days)
}
