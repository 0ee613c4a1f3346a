package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	require.Equal(t, "failed: boom", err.Error())
	require.ErrorIs(t, err, internal)
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", http.StatusBadRequest)
	with := base.WithInternal(stdErrors.New("oops"))

	require.NotSame(t, base, with)
	require.Nil(t, base.Internal)
	require.Error(t, with.Internal)
}

func TestFromError(t *testing.T) {
	require.Same(t, ErrNotFound, FromError(ErrNotFound))

	raw := stdErrors.New("raw")
	out := FromError(raw)
	require.Equal(t, ErrInternalServer.Code, out.Code)
	require.Error(t, out.Internal)
}

func TestWrapKeepsCause(t *testing.T) {
	wrapped := Wrap(ErrForbidden, "project lookup")
	require.Equal(t, "INTERNAL_ERROR", wrapped.Code)
	require.ErrorIs(t, wrapped, ErrForbidden)
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	require.Equal(t, ErrBadRequest.Code, err.Code)
	require.Equal(t, "invalid payload", err.Message)
	require.Equal(t, http.StatusBadRequest, err.StatusCode)
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("invoice not found")
	require.Equal(t, ErrNotFound.Code, err.Code)
	require.Equal(t, "invoice not found", err.Message)
	require.Equal(t, http.StatusNotFound, err.StatusCode)
}

func TestSentinelStatusCodes(t *testing.T) {
	require.Equal(t, http.StatusForbidden, ErrEmailNotVerified.StatusCode)
	require.Equal(t, http.StatusUnauthorized, ErrInvalidCredentials.StatusCode)
	require.Equal(t, http.StatusTooManyRequests, ErrRateLimit.StatusCode)
}
