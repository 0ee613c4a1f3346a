package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/services"
	"github.com/atelierhq/atelier/pkg/response"
)

// TicketHandler exposes support ticket operations.
type TicketHandler struct {
	tickets *services.TicketService
}

func NewTicketHandler(tickets *services.TicketService) *TicketHandler {
	return &TicketHandler{tickets: tickets}
}

type createTicketRequest struct {
	Subject  string `json:"subject" validate:"required,min=1,max=200"`
	Body     string `json:"body" validate:"required,min=1,max=10000"`
	Priority string `json:"priority" validate:"omitempty,oneof=low normal high"`
}

// POST /api/tickets
func (h *TicketHandler) Create(c *gin.Context) {
	var req createTicketRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ticket, err := h.tickets.Create(requestContext(c), currentActor(c), services.CreateTicketInput{
		Subject:  req.Subject,
		Body:     req.Body,
		Priority: req.Priority,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, ticket)
}

// GET /api/tickets
func (h *TicketHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 25)

	tickets, total, err := h.tickets.List(requestContext(c), currentActor(c), services.ListTicketsInput{
		Status: c.Query("status"),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, tickets, paginationMeta(page, perPage, total))
}

// GET /api/tickets/:id
func (h *TicketHandler) Get(c *gin.Context) {
	ticket, err := h.tickets.Get(requestContext(c), currentActor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, ticket)
}

type ticketReplyRequest struct {
	Body string `json:"body" validate:"required,min=1,max=10000"`
}

// POST /api/tickets/:id/replies
func (h *TicketHandler) Reply(c *gin.Context) {
	var req ticketReplyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	reply, err := h.tickets.Reply(requestContext(c), currentActor(c), c.Param("id"), req.Body)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, reply)
}

type ticketStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open in_progress resolved closed"`
}

// PUT /api/admin/tickets/:id/status
func (h *TicketHandler) UpdateStatus(c *gin.Context) {
	var req ticketStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ticket, err := h.tickets.UpdateStatus(requestContext(c), currentActor(c), c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, ticket)
}
