package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/atelierhq/atelier/internal/auth"
	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/internal/realtime"
	"github.com/atelierhq/atelier/pkg/errors"
	"github.com/atelierhq/atelier/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into authenticated WebSocket streams.
type RealtimeHandler struct {
	hub *realtime.Hub
	jwt *iauth.JWTService
	db  *gorm.DB
}

func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService, db *gorm.DB) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, jwt: jwt, db: db}
}

// Stream validates the caller and upgrades the request to the realtime hub.
// Browsers cannot set headers on WebSocket connects, so the token is also
// accepted as a query parameter.
//
// GET /api/stream
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.jwt == nil || h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		authz := c.GetHeader("Authorization")
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			token = strings.TrimSpace(authz[7:])
		}
	}
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	streams := gatherStreams(c)
	if len(streams) == 0 {
		streams = []string{realtime.StreamNotifications}
	}

	// Admins may join any stream. Clients are restricted to their own feed
	// and the project threads they belong to.
	var allowed map[string]struct{}
	if !claims.IsAdmin {
		allowed, err = h.allowedStreamsForUser(c, userID)
		if err != nil {
			response.Error(c, errors.ErrInternalServer)
			return
		}
	}

	h.hub.Serve(userID, streams, allowed, c.Writer, c.Request)
}

func (h *RealtimeHandler) allowedStreamsForUser(c *gin.Context, userID string) (map[string]struct{}, error) {
	allowed := map[string]struct{}{
		realtime.StreamNotifications: {},
	}

	var projectIDs []string
	if err := h.db.WithContext(requestContext(c)).
		Model(&models.Project{}).
		Where("client_id = ?", userID).
		Pluck("id", &projectIDs).Error; err != nil {
		return nil, err
	}
	for _, id := range projectIDs {
		allowed[realtime.ScopedStream(realtime.StreamProjectMessages, id)] = struct{}{}
	}

	var talkIDs []string
	if err := h.db.WithContext(requestContext(c)).
		Model(&models.TalkRequest{}).
		Where("user_id = ?", userID).
		Pluck("id", &talkIDs).Error; err != nil {
		return nil, err
	}
	for _, id := range talkIDs {
		allowed[realtime.ScopedStream(realtime.StreamTalkChat, id)] = struct{}{}
	}

	return allowed, nil
}

func gatherStreams(c *gin.Context) []string {
	var streams []string

	for _, queryStream := range c.QueryArray("stream") {
		if normalized := normalizeStream(queryStream); normalized != "" {
			streams = append(streams, normalized)
		}
	}

	raw := c.Query("streams")
	if raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if normalized := normalizeStream(part); normalized != "" {
				streams = append(streams, normalized)
			}
		}
	}

	return uniqueStreams(streams)
}

func normalizeStream(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func uniqueStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	var out []string
	for _, stream := range streams {
		if _, ok := seen[stream]; ok {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}
