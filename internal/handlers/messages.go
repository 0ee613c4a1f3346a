package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/services"
	"github.com/atelierhq/atelier/pkg/response"
)

// MessageHandler exposes the project discussion thread.
type MessageHandler struct {
	messages *services.MessageService
}

func NewMessageHandler(messages *services.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

type postMessageRequest struct {
	Body string `json:"body" validate:"required,min=1,max=10000"`
}

// POST /api/projects/:id/messages
func (h *MessageHandler) Post(c *gin.Context) {
	var req postMessageRequest
	if !bindAndValidate(c, &req) {
		return
	}

	message, err := h.messages.Post(requestContext(c), currentActor(c), c.Param("id"), req.Body)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, message)
}

// GET /api/projects/:id/messages
func (h *MessageHandler) List(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)

	messages, err := h.messages.List(requestContext(c), currentActor(c), c.Param("id"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, messages)
}

// POST /api/projects/:id/messages/typing
func (h *MessageHandler) Typing(c *gin.Context) {
	if err := h.messages.NotifyTyping(requestContext(c), currentActor(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"notified": true})
}
