package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/atelierhq/atelier/internal/cache"
	"github.com/atelierhq/atelier/internal/models"
)

// SessionCache stores sessions keyed by refresh token to avoid database
// lookups on hot refresh paths.
type SessionCache interface {
	Set(ctx context.Context, session *models.Session, ttl time.Duration) error
	Get(ctx context.Context, refreshToken string) (*models.Session, error)
	Delete(ctx context.Context, refreshToken string) error
}

type storeSessionCache struct {
	store cache.Store
}

// NewSessionCache wraps a cache.Store as a SessionCache. Refresh tokens are
// hashed before use as cache keys so the raw token never lands in the store.
func NewSessionCache(store cache.Store) SessionCache {
	if store == nil {
		return nil
	}
	return &storeSessionCache{store: store}
}

func sessionCacheKey(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return "session:" + hex.EncodeToString(sum[:])
}

func (c *storeSessionCache) Set(ctx context.Context, session *models.Session, ttl time.Duration) error {
	if session == nil || session.RefreshToken == "" {
		return nil
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, sessionCacheKey(session.RefreshToken), payload, ttl)
}

func (c *storeSessionCache) Get(ctx context.Context, refreshToken string) (*models.Session, error) {
	payload, ok, err := c.store.Get(ctx, sessionCacheKey(refreshToken))
	if err != nil || !ok {
		return nil, err
	}
	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *storeSessionCache) Delete(ctx context.Context, refreshToken string) error {
	return c.store.Delete(ctx, sessionCacheKey(refreshToken))
}
