package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/pkg/response"
)

func TestRecoveryKeepsServingAfterPanics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic-string", func(c *gin.Context) {
		panic("webhook processor exploded")
	})
	r.GET("/panic-error", func(c *gin.Context) {
		panic(errors.New("nil invoice dereference"))
	})
	r.GET("/healthy", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for _, path := range []string{"/panic-string", "/panic-error"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		require.Equal(t, http.StatusInternalServerError, w.Code, path)
		var payload response.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
		require.False(t, payload.Success)
		require.Equal(t, "INTERNAL_SERVER_ERROR", payload.Error.Code)
		// The panic value itself never leaks into the response.
		require.NotContains(t, w.Body.String(), "exploded")
		require.NotContains(t, w.Body.String(), "dereference")
	}

	// A panic in one handler leaves the engine serving the next request.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthy", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestNotFoundHandlerUsesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.NoRoute(NotFoundHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.False(t, payload.Success)
	require.Equal(t, "NOT_FOUND", payload.Error.Code)
}
