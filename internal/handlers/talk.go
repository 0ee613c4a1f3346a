package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/middleware"
	"github.com/atelierhq/atelier/internal/services"
	"github.com/atelierhq/atelier/pkg/response"
)

// TalkHandler exposes the talk-to-expert intake and lifecycle.
type TalkHandler struct {
	talks *services.TalkService
}

func NewTalkHandler(talks *services.TalkService) *TalkHandler {
	return &TalkHandler{talks: talks}
}

type talkIntakeRequest struct {
	Name         string     `json:"name" validate:"required,min=1,max=120"`
	Email        string     `json:"email" validate:"omitempty,email"`
	Phone        string     `json:"phone" validate:"max=32"`
	Requirement  string     `json:"requirement" validate:"required,min=1,max=5000"`
	Mode         string     `json:"mode" validate:"required,oneof=phone video chat schedule"`
	Immediate    bool       `json:"immediate"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

// Submit accepts a public intake payload. Signed-in submitters get their
// account linked; anonymous submissions are accepted as-is.
//
// POST /api/talk
func (h *TalkHandler) Submit(c *gin.Context) {
	var req talkIntakeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.talks.Submit(requestContext(c), services.TalkIntakeInput{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Requirement:  req.Requirement,
		Mode:         req.Mode,
		Immediate:    req.Immediate,
		ScheduledFor: req.ScheduledFor,
		UserID:       c.GetString(middleware.CtxUserIDKey),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, request)
}

// GET /api/admin/talk
func (h *TalkHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 25)

	requests, total, err := h.talks.List(requestContext(c), services.ListTalkRequestsInput{
		Status: c.Query("status"),
		Mode:   c.Query("mode"),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, requests, paginationMeta(page, perPage, total))
}

// GET /api/admin/talk/:id
func (h *TalkHandler) Get(c *gin.Context) {
	request, err := h.talks.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, request)
}

type talkTransitionRequest struct {
	Status string `json:"status" validate:"required"`
}

// PUT /api/admin/talk/:id/status
func (h *TalkHandler) Transition(c *gin.Context) {
	var req talkTransitionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.talks.Transition(requestContext(c), c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, request)
}

type transcriptRequest struct {
	Author string `json:"author" validate:"required,min=1,max=120"`
	Text   string `json:"text" validate:"required,min=1,max=5000"`
}

// POST /api/talk/:id/messages
func (h *TalkHandler) AppendTranscript(c *gin.Context) {
	var req transcriptRequest
	if !bindAndValidate(c, &req) {
		return
	}

	entry, err := h.talks.AppendTranscript(requestContext(c), c.Param("id"), req.Author, req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, entry)
}
