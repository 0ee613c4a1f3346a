package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/services"
	apperrors "github.com/atelierhq/atelier/pkg/errors"
	"github.com/atelierhq/atelier/pkg/response"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// InvoiceHandler exposes invoicing, checkout, and the payment webhook.
type InvoiceHandler struct {
	invoices *services.InvoiceService
}

func NewInvoiceHandler(invoices *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

type createInvoiceRequest struct {
	ProjectID   string `json:"project_id" validate:"required,uuid4"`
	Description string `json:"description" validate:"max=2000"`
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
}

// POST /api/admin/invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req createInvoiceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invoice, err := h.invoices.Create(requestContext(c), currentActor(c), services.CreateInvoiceInput{
		ProjectID:   req.ProjectID,
		Description: req.Description,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, invoice)
}

// POST /api/admin/invoices/:id/send
func (h *InvoiceHandler) Send(c *gin.Context) {
	invoice, err := h.invoices.Send(requestContext(c), currentActor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invoice)
}

// GET /api/invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 25)

	invoices, total, err := h.invoices.List(requestContext(c), currentActor(c), services.ListInvoicesInput{
		Status: c.Query("status"),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, invoices, paginationMeta(page, perPage, total))
}

// GET /api/invoices/:id
func (h *InvoiceHandler) Get(c *gin.Context) {
	invoice, err := h.invoices.Get(requestContext(c), currentActor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invoice)
}

// POST /api/invoices/:id/checkout
func (h *InvoiceHandler) Checkout(c *gin.Context) {
	session, err := h.invoices.CreateCheckout(requestContext(c), currentActor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// Webhook handles payment provider deliveries. It is unauthenticated; the
// provider signature is the only trust anchor.
//
// POST /api/webhooks/payments
func (h *InvoiceHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("unreadable payload"))
		return
	}

	if err := h.invoices.HandleWebhook(requestContext(c), payload, c.GetHeader("Stripe-Signature")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"received": true})
}
