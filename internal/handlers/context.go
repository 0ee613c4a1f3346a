package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/middleware"
	"github.com/atelierhq/atelier/internal/services"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentActor extracts the authenticated identity placed by the auth middleware.
func currentActor(c *gin.Context) services.Actor {
	return services.Actor{
		UserID:  c.GetString(middleware.CtxUserIDKey),
		IsAdmin: c.GetBool(middleware.CtxIsAdminKey),
	}
}
