package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/atelierhq/atelier/internal/auth"
	"github.com/atelierhq/atelier/internal/auth/mfa"
	"github.com/atelierhq/atelier/internal/middleware"
	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/internal/services"
	apperrors "github.com/atelierhq/atelier/pkg/errors"
	"github.com/atelierhq/atelier/pkg/response"
)

// AuthCookieSettings controls how the access token cookie is written.
type AuthCookieSettings struct {
	Name   string
	Domain string
	Secure bool
	MaxAge int
}

// AuthHandler manages signup, email verification, sign-in, and session flows.
type AuthHandler struct {
	users    *services.UserService
	sessions *iauth.SessionService
	totp     *mfa.TOTPService
	cookie   AuthCookieSettings
}

func NewAuthHandler(users *services.UserService, sessions *iauth.SessionService, totp *mfa.TOTPService, cookie AuthCookieSettings) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, totp: totp, cookie: cookie}
}

type signupRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Company  string `json:"company" validate:"max=120"`
	Phone    string `json:"phone" validate:"max=32"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// POST /api/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Register(requestContext(c), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Company:  req.Company,
		Phone:    req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"user":                  userPayload(user),
		"verification_required": true,
	})
}

type verifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6"`
}

// POST /api/auth/verify
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.VerifyEmail(requestContext(c), req.Email, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": userPayload(user)})
}

type resendCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/resend
func (h *AuthHandler) ResendCode(c *gin.Context) {
	var req resendCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.users.ResendVerification(requestContext(c), req.Email); err != nil {
		// Do not reveal whether the address exists.
		if errors.Is(err, services.ErrUserNotFound) {
			response.Success(c, http.StatusOK, gin.H{"sent": true})
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sent": true})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfa_code"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), req.Email, req.Password, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	// Admins with enrolled MFA must present a TOTP or backup code.
	if user.IsAdmin && user.MFAEnabled && h.totp != nil {
		code := strings.TrimSpace(req.MFACode)
		if code == "" {
			response.Error(c, apperrors.ErrMFARequired)
			return
		}
		valid, verifyErr := h.totp.VerifyCode(user.ID, code)
		if verifyErr != nil || !valid {
			if used, _ := h.totp.UseBackupCode(user.ID, code); !used {
				response.Error(c, apperrors.ErrMFAInvalid)
				return
			}
		}
	}

	pair, _, err := h.sessions.CreateSession(user, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer)
		return
	}

	h.setAuthCookie(c, pair.AccessToken)

	response.Success(c, http.StatusOK, gin.H{
		"tokens": tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
		"user":   userPayload(user),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, _, err := h.sessions.RefreshSession(strings.TrimSpace(req.RefreshToken))
	if err != nil {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	h.setAuthCookie(c, pair.AccessToken)
	response.Success(c, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sid := c.GetString(middleware.CtxSessionIDKey)
	if sid == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(sid); err != nil && !errors.Is(err, iauth.ErrSessionNotFound) {
		response.Error(c, apperrors.ErrInternalServer)
		return
	}

	h.clearAuthCookie(c)
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": userPayload(user)})
}

func (h *AuthHandler) setAuthCookie(c *gin.Context, token string) {
	if h.cookie.Name == "" {
		return
	}
	maxAge := h.cookie.MaxAge
	if maxAge <= 0 {
		maxAge = 3600
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}

func (h *AuthHandler) clearAuthCookie(c *gin.Context) {
	if h.cookie.Name == "" {
		return
	}
	c.SetCookie(h.cookie.Name, "", -1, "/", h.cookie.Domain, h.cookie.Secure, true)
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":           user.ID,
		"name":         user.Name,
		"email":        user.Email,
		"company":      user.Company,
		"phone":        user.Phone,
		"avatar":       user.Avatar,
		"is_admin":     user.IsAdmin,
		"is_active":    user.IsActive,
		"verified":     user.IsVerified(),
		"availability": user.Availability,
		"mfa_enabled":  user.MFAEnabled,
	}
}
