package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
	"gorm.io/gorm"

	testutil "github.com/atelierhq/atelier/internal/database/testutil"
	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/internal/payments"
	apperrors "github.com/atelierhq/atelier/pkg/errors"
)

const testWebhookSecret = "whsec_test_secret"

func TestAmountToCents(t *testing.T) {
	cases := []struct {
		amount   float64
		expected int64
	}{
		{0, 0},
		{10, 1000},
		{19.99, 1999},
		{19.999, 2000},
		{0.005, 1},
		{-4.5, -450},
	}

	for _, tc := range cases {
		require.Equal(t, tc.expected, AmountToCents(tc.amount), "amount %v", tc.amount)
	}
}

func newInvoiceFixture(t *testing.T, db *gorm.DB, processor *payments.Processor) (*InvoiceService, *models.User, *models.Project) {
	t.Helper()

	projects, err := NewProjectService(db)
	require.NoError(t, err)

	svc, err := NewInvoiceService(db, projects, processor, nil)
	require.NoError(t, err)

	client := &models.User{
		Name:     "Client",
		Email:    "client@example.com",
		Password: "not-a-real-hash",
		IsActive: true,
	}
	require.NoError(t, db.Create(client).Error)

	admin := Actor{UserID: "admin-1", IsAdmin: true}
	project, err := projects.Create(context.Background(), admin, CreateProjectInput{
		ClientID: client.ID,
		Name:     "Brand refresh",
	})
	require.NoError(t, err)

	return svc, client, project
}

func TestInvoiceLifecycle(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, client, project := newInvoiceFixture(t, db, nil)
	ctx := context.Background()

	admin := Actor{UserID: "admin-1", IsAdmin: true}
	owner := Actor{UserID: client.ID}

	t.Run("create requires admin", func(t *testing.T) {
		_, err := svc.Create(ctx, owner, CreateInvoiceInput{
			ProjectID:   project.ID,
			AmountCents: 50000,
		})
		require.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("amount must be positive", func(t *testing.T) {
		_, err := svc.Create(ctx, admin, CreateInvoiceInput{
			ProjectID:   project.ID,
			AmountCents: 0,
		})
		requireBadRequest(t, err)
	})

	invoice, err := svc.Create(ctx, admin, CreateInvoiceInput{
		ProjectID:   project.ID,
		Description: "Phase one",
		AmountCents: 50000,
		Currency:    "EUR",
	})
	require.NoError(t, err)
	require.Equal(t, models.InvoiceStatusDraft, invoice.Status)
	require.Equal(t, "eur", invoice.Currency)
	require.Contains(t, invoice.Number, "INV-")

	t.Run("clients cannot see drafts of others", func(t *testing.T) {
		stranger := Actor{UserID: "someone-else"}
		_, err := svc.Get(ctx, stranger, invoice.ID)
		require.ErrorIs(t, err, ErrInvoiceNotFound)
	})

	t.Run("owner sees own invoice", func(t *testing.T) {
		got, err := svc.Get(ctx, owner, invoice.ID)
		require.NoError(t, err)
		require.Equal(t, invoice.ID, got.ID)
	})

	t.Run("send transitions draft to sent", func(t *testing.T) {
		sent, err := svc.Send(ctx, admin, invoice.ID)
		require.NoError(t, err)
		require.Equal(t, models.InvoiceStatusSent, sent.Status)

		_, err = svc.Send(ctx, admin, invoice.ID)
		requireBadRequest(t, err)
	})

	t.Run("list scopes to owner", func(t *testing.T) {
		rows, total, err := svc.List(ctx, owner, ListInvoicesInput{})
		require.NoError(t, err)
		require.Equal(t, int64(1), total)
		require.Len(t, rows, 1)

		rows, total, err = svc.List(ctx, Actor{UserID: "someone-else"}, ListInvoicesInput{})
		require.NoError(t, err)
		require.Zero(t, total)
		require.Empty(t, rows)
	})

	t.Run("checkout without processor", func(t *testing.T) {
		_, err := svc.CreateCheckout(ctx, owner, invoice.ID)
		require.ErrorIs(t, err, ErrPaymentsDisabled)
	})
}

func newWebhookProcessor(t *testing.T) *payments.Processor {
	t.Helper()

	processor, err := payments.NewProcessor(payments.Config{
		SecretKey:     "sk_test_not_real",
		WebhookSecret: testWebhookSecret,
		SuccessURL:    "https://atelier.test/billing/success",
		CancelURL:     "https://atelier.test/billing/cancel",
	})
	require.NoError(t, err)
	return processor
}

func signedPayload(t *testing.T, eventType, sessionID string) ([]byte, string) {
	t.Helper()

	payload := []byte(fmt.Sprintf(`{"id":"evt_test","type":%q,"data":{"object":{"id":%q}}}`, eventType, sessionID))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestHandleWebhookWithoutSecretIsNoOp(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, _, _ := newInvoiceFixture(t, db, nil)

	// Misconfigured deployments acknowledge deliveries instead of failing,
	// otherwise the provider retries forever.
	require.NoError(t, svc.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=junk"))
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, _, _ := newInvoiceFixture(t, db, newWebhookProcessor(t))

	err := svc.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=junk")

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "WEBHOOK_INVALID", appErr.Code)
}

func TestHandleWebhookReconciliation(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, _, project := newInvoiceFixture(t, db, newWebhookProcessor(t))
	ctx := context.Background()

	admin := Actor{UserID: "admin-1", IsAdmin: true}
	invoice, err := svc.Create(ctx, admin, CreateInvoiceInput{
		ProjectID:   project.ID,
		AmountCents: 120000,
	})
	require.NoError(t, err)
	_, err = svc.Send(ctx, admin, invoice.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Invoice{}).
		Where("id = ?", invoice.ID).
		Update("checkout_session_id", "cs_test_123").Error)

	t.Run("completed marks paid", func(t *testing.T) {
		payload, header := signedPayload(t, "checkout.session.completed", "cs_test_123")
		require.NoError(t, svc.HandleWebhook(ctx, payload, header))

		var updated models.Invoice
		require.NoError(t, db.Take(&updated, "id = ?", invoice.ID).Error)
		require.Equal(t, models.InvoiceStatusPaid, updated.Status)
		require.NotNil(t, updated.PaidAt)
	})

	t.Run("expired marks failed", func(t *testing.T) {
		require.NoError(t, db.Model(&models.Invoice{}).
			Where("id = ?", invoice.ID).
			Updates(map[string]any{"status": models.InvoiceStatusSent, "paid_at": nil}).Error)

		payload, header := signedPayload(t, "checkout.session.expired", "cs_test_123")
		require.NoError(t, svc.HandleWebhook(ctx, payload, header))

		var updated models.Invoice
		require.NoError(t, db.Take(&updated, "id = ?", invoice.ID).Error)
		require.Equal(t, models.InvoiceStatusFailed, updated.Status)
	})

	t.Run("unknown session is acknowledged", func(t *testing.T) {
		payload, header := signedPayload(t, "checkout.session.completed", "cs_unknown")
		require.NoError(t, svc.HandleWebhook(ctx, payload, header))
	})

	t.Run("unhandled event types are ignored", func(t *testing.T) {
		payload, header := signedPayload(t, "customer.created", "cs_test_123")
		require.NoError(t, svc.HandleWebhook(ctx, payload, header))
	})
}
