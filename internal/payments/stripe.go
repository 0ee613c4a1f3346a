package payments

import (
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v79"
	stripeclient "github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Checkout session event types the portal reconciles on.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventPaymentFailed     = "payment_intent.payment_failed"
)

// ErrNotConfigured is returned when payment credentials are absent.
var ErrNotConfigured = errors.New("payments: not configured")

// Config carries the payment provider credentials and redirect targets.
type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// CheckoutInput describes the invoice being paid.
type CheckoutInput struct {
	InvoiceID     string
	InvoiceNumber string
	AmountCents   int64
	Currency      string
	Description   string
	CustomerEmail string
}

// CheckoutSession is the provider-side payment session for an invoice.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Processor creates checkout sessions and verifies webhook signatures.
type Processor struct {
	api           *stripeclient.API
	webhookSecret string
	successURL    string
	cancelURL     string
}

// NewProcessor builds a payment processor. A nil processor is returned with
// ErrNotConfigured when no secret key is set, letting callers degrade to
// manual invoicing.
func NewProcessor(cfg Config) (*Processor, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, ErrNotConfigured
	}

	api := &stripeclient.API{}
	api.Init(cfg.SecretKey, nil)

	return &Processor{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}, nil
}

// CreateCheckoutSession opens a hosted checkout session for an invoice.
func (p *Processor) CreateCheckoutSession(input CheckoutInput) (*CheckoutSession, error) {
	if input.AmountCents <= 0 {
		return nil, errors.New("payments: amount must be positive")
	}

	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "usd"
	}

	name := input.Description
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("Invoice %s", input.InvoiceNumber)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.successURL),
		CancelURL:  stripe.String(p.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(input.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
				},
			},
		},
		ClientReferenceID: stripe.String(input.InvoiceID),
		Metadata: map[string]string{
			"invoice_id":     input.InvoiceID,
			"invoice_number": input.InvoiceNumber,
		},
	}

	if email := strings.TrimSpace(input.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("payments: create checkout session: %w", err)
	}

	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// VerifyWebhook validates the provider signature and decodes the event.
func (p *Processor) VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error) {
	if strings.TrimSpace(p.webhookSecret) == "" {
		return stripe.Event{}, ErrNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("payments: verify webhook: %w", err)
	}

	return event, nil
}

// WebhookConfigured reports whether webhook verification is possible.
func (p *Processor) WebhookConfigured() bool {
	return p != nil && strings.TrimSpace(p.webhookSecret) != ""
}
