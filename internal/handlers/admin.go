package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/auth/mfa"
	"github.com/atelierhq/atelier/internal/middleware"
	"github.com/atelierhq/atelier/internal/services"
	apperrors "github.com/atelierhq/atelier/pkg/errors"
	"github.com/atelierhq/atelier/pkg/response"
)

// AdminHandler exposes the admin console: dashboard stats, user management,
// and MFA enrolment.
type AdminHandler struct {
	users     *services.UserService
	dashboard *services.DashboardService
	totp      *mfa.TOTPService
}

func NewAdminHandler(users *services.UserService, dashboard *services.DashboardService, totp *mfa.TOTPService) *AdminHandler {
	return &AdminHandler{users: users, dashboard: dashboard, totp: totp}
}

// GET /api/admin/dashboard
func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.dashboard.Stats(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

// GET /api/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 25)

	filters := services.UserFilters{Query: c.Query("q")}
	if v := c.Query("is_admin"); v != "" {
		isAdmin := v == "true"
		filters.IsAdmin = &isAdmin
	}
	if v := c.Query("is_active"); v != "" {
		isActive := v == "true"
		filters.IsActive = &isActive
	}

	users, total, err := h.users.List(requestContext(c), services.ListUsersOptions{
		Page:     page,
		PageSize: perPage,
		Filters:  filters,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, users, paginationMeta(page, perPage, total))
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// PUT /api/admin/users/:id/active
func (h *AdminHandler) SetUserActive(c *gin.Context) {
	var req setActiveRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.users.SetActive(requestContext(c), c.Param("id"), *req.Active); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"active": *req.Active})
}

type setAdminRequest struct {
	Admin *bool `json:"admin" validate:"required"`
}

// PUT /api/admin/users/:id/admin
func (h *AdminHandler) SetUserAdmin(c *gin.Context) {
	var req setAdminRequest
	if !bindAndValidate(c, &req) {
		return
	}

	// An admin cannot revoke their own role; another admin has to.
	if !*req.Admin && c.Param("id") == c.GetString(middleware.CtxUserIDKey) {
		response.Error(c, apperrors.NewBadRequest("cannot revoke your own admin role"))
		return
	}

	if err := h.users.SetAdmin(requestContext(c), c.Param("id"), *req.Admin); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"admin": *req.Admin})
}

// SetupMFA provisions a TOTP secret for the calling admin. The secret stays
// pending until confirmed with a valid code.
//
// POST /api/admin/mfa/setup
func (h *AdminHandler) SetupMFA(c *gin.Context) {
	if h.totp == nil {
		response.Error(c, apperrors.NewBadRequest("mfa is not configured"))
		return
	}

	userID := c.GetString(middleware.CtxUserIDKey)
	user, err := h.users.GetByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	key, backupCodes, err := h.totp.GenerateSecret(user.ID, user.Email)
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	qr, err := h.totp.GenerateQRCode(key)
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"secret":       key.Secret(),
		"otpauth_url":  key.String(),
		"qr_png":       base64.StdEncoding.EncodeToString(qr),
		"backup_codes": backupCodes,
	})
}

type mfaCodeRequest struct {
	Code string `json:"code" validate:"required,min=6,max=10"`
}

// POST /api/admin/mfa/confirm
func (h *AdminHandler) ConfirmMFA(c *gin.Context) {
	if h.totp == nil {
		response.Error(c, apperrors.NewBadRequest("mfa is not configured"))
		return
	}

	var req mfaCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	userID := c.GetString(middleware.CtxUserIDKey)
	ok, err := h.totp.Confirm(userID, req.Code)
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}
	if !ok {
		response.Error(c, apperrors.ErrMFAInvalid)
		return
	}

	if err := h.users.SetMFAEnabled(requestContext(c), userID, true); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"enabled": true})
}

// POST /api/admin/mfa/disable
func (h *AdminHandler) DisableMFA(c *gin.Context) {
	if h.totp == nil {
		response.Error(c, apperrors.NewBadRequest("mfa is not configured"))
		return
	}

	var req mfaCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	userID := c.GetString(middleware.CtxUserIDKey)
	ok, err := h.totp.VerifyCode(userID, req.Code)
	if err != nil || !ok {
		if used, _ := h.totp.UseBackupCode(userID, req.Code); !used {
			response.Error(c, apperrors.ErrMFAInvalid)
			return
		}
	}

	if err := h.totp.Disable(userID); err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}
	if err := h.users.SetMFAEnabled(requestContext(c), userID, false); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"enabled": false})
}
