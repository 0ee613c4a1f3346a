package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/middleware"
	"github.com/atelierhq/atelier/internal/services"
	"github.com/atelierhq/atelier/pkg/response"
)

// ProfileHandler manages the signed-in user's own account.
type ProfileHandler struct {
	users *services.UserService
}

func NewProfileHandler(users *services.UserService) *ProfileHandler {
	return &ProfileHandler{users: users}
}

type updateProfileRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=120"`
	Company *string `json:"company" validate:"omitempty,max=120"`
	Phone   *string `json:"phone" validate:"omitempty,max=32"`
	Avatar  *string `json:"avatar" validate:"omitempty,max=512"`
}

// PATCH /api/profile
func (h *ProfileHandler) Update(c *gin.Context) {
	var req updateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.UpdateProfile(requestContext(c), c.GetString(middleware.CtxUserIDKey), services.UpdateProfileInput{
		Name:    req.Name,
		Company: req.Company,
		Phone:   req.Phone,
		Avatar:  req.Avatar,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": userPayload(user)})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// POST /api/profile/password
func (h *ProfileHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.users.ChangePassword(requestContext(c), c.GetString(middleware.CtxUserIDKey), req.CurrentPassword, req.NewPassword)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"changed": true})
}

type availabilityRequest struct {
	Availability string `json:"availability" validate:"required,oneof=online busy offline"`
}

// PUT /api/profile/availability
func (h *ProfileHandler) SetAvailability(c *gin.Context) {
	var req availabilityRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.SetAvailability(requestContext(c), c.GetString(middleware.CtxUserIDKey), req.Availability)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"availability": user.Availability})
}
