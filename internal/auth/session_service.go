package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/pkg/crypto"
)

// DefaultRefreshTokenTTL applies when configuration leaves the refresh
// lifetime unset.
const DefaultRefreshTokenTTL = 30 * 24 * time.Hour

const defaultRefreshLength = 48

// SessionConfig tunes the session manager. Clock and Cache are optional;
// tests inject the former and Redis-backed deployments the latter.
type SessionConfig struct {
	RefreshTokenTTL time.Duration
	RefreshLength   int
	Clock           func() time.Time
	Cache           SessionCache
}

// SessionMetadata records where a session was opened from.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// TokenPair is what a successful login or refresh hands back: a signed
// access token and the opaque refresh token backing it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

var (
	ErrSessionNotFound     = errors.New("session: not found")
	ErrSessionRevoked      = errors.New("session: revoked")
	ErrSessionExpired      = errors.New("session: expired")
	ErrSessionInvalidToken = errors.New("session: invalid token")
)

// SessionService creates, rotates, and revokes refresh sessions. Every
// refresh rotates the token, so a stolen token stops working the moment
// its rightful holder uses theirs.
type SessionService struct {
	db         *gorm.DB
	jwt        *JWTService
	refreshTTL time.Duration
	tokenLen   int
	now        func() time.Time
	cache      SessionCache
}

func NewSessionService(db *gorm.DB, jwtService *JWTService, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("session service: jwt service is required")
	}

	svc := &SessionService{
		db:         db,
		jwt:        jwtService,
		refreshTTL: cfg.RefreshTokenTTL,
		tokenLen:   cfg.RefreshLength,
		now:        cfg.Clock,
		cache:      cfg.Cache,
	}
	if svc.refreshTTL <= 0 {
		svc.refreshTTL = DefaultRefreshTokenTTL
	}
	if svc.tokenLen <= 0 {
		svc.tokenLen = defaultRefreshLength
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// CreateSession opens a session for the user and issues its first pair.
func (s *SessionService) CreateSession(user *models.User, meta SessionMetadata) (TokenPair, *models.Session, error) {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return TokenPair{}, nil, errors.New("session service: user is required")
	}

	refreshToken, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: generate refresh token: %w", err)
	}

	now := s.now()
	session := &models.Session{
		UserID:       user.ID,
		RefreshToken: refreshToken,
		IPAddress:    strings.TrimSpace(meta.IPAddress),
		UserAgent:    strings.TrimSpace(meta.UserAgent),
		ExpiresAt:    now.Add(s.refreshTTL),
		LastUsedAt:   now,
	}
	if err := s.db.Create(session).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: create session: %w", err)
	}

	pair, err := s.issuePair(user.ID, session.ID, user.IsAdmin, refreshToken)
	if err != nil {
		return TokenPair{}, nil, err
	}

	if s.cache != nil {
		_ = s.cache.Set(context.Background(), session, s.refreshTTL)
	}

	return pair, session, nil
}

// RefreshSession exchanges a refresh token for a new pair, rotating the
// stored token in the same step.
func (s *SessionService) RefreshSession(refreshToken string) (TokenPair, *models.Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, nil, ErrSessionInvalidToken
	}

	session, err := s.lookupByToken(refreshToken)
	if err != nil {
		return TokenPair{}, nil, err
	}

	now := s.now()
	switch {
	case session.RevokedAt != nil:
		return TokenPair{}, nil, ErrSessionRevoked
	case session.ExpiresAt.Before(now):
		return TokenPair{}, nil, ErrSessionExpired
	}

	// IsAdmin rides on the access token, so the user row is needed.
	var user models.User
	if err := s.db.Take(&user, "id = ?", session.UserID).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: load user: %w", err)
	}

	rotated, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: generate refresh token: %w", err)
	}

	expiresAt := now.Add(s.refreshTTL)
	err = s.db.Model(session).Updates(map[string]any{
		"refresh_token": rotated,
		"expires_at":    expiresAt,
		"last_used_at":  now,
	}).Error
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: update session: %w", err)
	}
	session.RefreshToken = rotated
	session.ExpiresAt = expiresAt
	session.LastUsedAt = now

	pair, err := s.issuePair(session.UserID, session.ID, user.IsAdmin, rotated)
	if err != nil {
		return TokenPair{}, nil, err
	}

	if s.cache != nil {
		_ = s.cache.Delete(context.Background(), refreshToken)
		ttl := time.Until(session.ExpiresAt)
		if ttl <= 0 {
			ttl = s.refreshTTL
		}
		_ = s.cache.Set(context.Background(), session, ttl)
	}

	return pair, session, nil
}

// RevokeSession permanently disables a session. The access token keeps
// working until it expires, which is why access TTLs stay short.
func (s *SessionService) RevokeSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionInvalidToken
	}

	var cachedToken string
	if s.cache != nil {
		var session models.Session
		if err := s.db.Select("refresh_token").Take(&session, "id = ?", sessionID).Error; err == nil {
			cachedToken = session.RefreshToken
		}
	}

	result := s.db.Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("session service: revoke session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	if s.cache != nil && cachedToken != "" {
		_ = s.cache.Delete(context.Background(), cachedToken)
	}
	return nil
}

// CleanupExpired deletes sessions past their expiry or already revoked.
// The maintenance cleaner runs this on a schedule.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR revoked_at IS NOT NULL", s.now()).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: cleanup expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *SessionService) issuePair(userID, sessionID string, isAdmin bool, refreshToken string) (TokenPair, error) {
	accessToken, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		UserID:    userID,
		SessionID: sessionID,
		IsAdmin:   isAdmin,
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("session service: generate access token: %w", err)
	}
	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// lookupByToken prefers the cache and falls back to the database. Cache
// misses are silent; the database is the source of truth.
func (s *SessionService) lookupByToken(refreshToken string) (*models.Session, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(context.Background(), refreshToken); err == nil && cached != nil {
			return cached, nil
		}
	}

	var session models.Session
	err := s.db.Where("refresh_token = ?", refreshToken).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: find session: %w", err)
	}
	return &session, nil
}
