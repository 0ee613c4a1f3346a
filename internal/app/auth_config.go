package app

import (
	"github.com/atelierhq/atelier/internal/auth"
)

// JWTServiceConfig maps the auth block onto the JWT service parameters,
// substituting the package default when the TTL is unset.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	cfg := auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: c.JWT.TTL,
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = auth.DefaultAccessTokenTTL
	}
	return cfg
}

// SessionServiceConfig maps the auth block onto session parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	cfg := auth.SessionConfig{
		RefreshTokenTTL: c.Session.RefreshTTL,
		RefreshLength:   c.Session.RefreshLength,
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = auth.DefaultRefreshTokenTTL
	}
	if cfg.RefreshLength <= 0 {
		cfg.RefreshLength = 48
	}
	return cfg
}
