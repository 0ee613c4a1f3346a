package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/atelierhq/atelier/pkg/errors"
	"github.com/atelierhq/atelier/pkg/logger"
	"github.com/atelierhq/atelier/pkg/response"
)

// Recovery catches handler panics, logs them, and answers with the
// standard error envelope instead of a dropped connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithModule("http").Error("panic",
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", r),
				)
				// The envelope is written inline because response.Error
				// could itself panic on a broken writer.
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "INTERNAL_SERVER_ERROR",
						"message": "Internal server error",
					},
				})
			}
		}()
		c.Next()
	}
}

// NotFoundHandler answers unknown routes with the error envelope so
// clients never see gin's default plain-text 404.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, apperrors.NewNotFound("route not found"))
}
