package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/pkg/crypto"
	apperrors "github.com/atelierhq/atelier/pkg/errors"
	"github.com/atelierhq/atelier/pkg/metrics"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrUserInactive indicates the account has been deactivated.
	ErrUserInactive = apperrors.New("USER_INACTIVE", "Account is deactivated", http.StatusForbidden)
)

// RegisterInput describes the fields accepted at signup.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Company  string
	Phone    string
}

// UpdateProfileInput enumerates mutable profile attributes.
type UpdateProfileInput struct {
	Name    *string
	Company *string
	Phone   *string
	Avatar  *string
}

// UserFilters captures listing filters.
type UserFilters struct {
	IsAdmin  *bool
	IsActive *bool
	Query    string
}

// ListUsersOptions controls pagination for user listing.
type ListUsersOptions struct {
	Page     int
	PageSize int
	Filters  UserFilters
}

// UserServiceOption customises the UserService.
type UserServiceOption func(*UserService)

// WithUserClock injects a custom time source.
func WithUserClock(clock func() time.Time) UserServiceOption {
	return func(s *UserService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// UserService manages account lifecycle: signup, verification, sign-in,
// profiles, and admin availability.
type UserService struct {
	db   *gorm.DB
	otps *OTPService
	now  func() time.Time
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, otps *OTPService, opts ...UserServiceOption) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if otps == nil {
		return nil, errors.New("user service: otp service is required")
	}

	service := &UserService{
		db:   db,
		otps: otps,
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Register provisions a new unverified account and issues a verification code.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	email := normalizeEmail(input.Email)
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		metrics.SignupsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		Password:     hashed,
		Company:      strings.TrimSpace(input.Company),
		Phone:        strings.TrimSpace(input.Phone),
		IsActive:     true,
		Availability: models.AvailabilityOffline,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			metrics.SignupsTotal.WithLabelValues("duplicate").Inc()
			return nil, apperrors.ErrEmailTaken
		}
		metrics.SignupsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	if _, err := s.otps.IssueCode(ctx, user.ID, user.Email); err != nil {
		metrics.SignupsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("user service: issue verification code: %w", err)
	}

	metrics.SignupsTotal.WithLabelValues("created").Inc()
	return user, nil
}

// VerifyEmail consumes an OTP code and marks the account verified.
func (s *UserService) VerifyEmail(ctx context.Context, email, code string) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if user.IsVerified() {
		return user, nil
	}

	if err := s.otps.VerifyCode(ctx, user.ID, code); err != nil {
		switch {
		case errors.Is(err, ErrOTPExpired):
			return nil, apperrors.ErrOTPExpired
		case errors.Is(err, ErrOTPNotFound), errors.Is(err, ErrOTPConsumed), errors.Is(err, ErrOTPMismatch):
			return nil, apperrors.ErrOTPInvalid
		default:
			return nil, fmt.Errorf("user service: verify code: %w", err)
		}
	}

	now := s.now()
	if err := s.db.WithContext(ctx).
		Model(user).
		Update("verified_at", &now).Error; err != nil {
		return nil, fmt.Errorf("user service: mark verified: %w", err)
	}

	user.VerifiedAt = &now
	return user, nil
}

// ResendVerification issues a fresh code for an unverified account.
func (s *UserService) ResendVerification(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)

	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsVerified() {
		return apperrors.NewBadRequest("email is already verified")
	}

	_, err = s.otps.IssueCode(ctx, user.ID, user.Email)
	return err
}

// Authenticate validates credentials and records the sign-in. Unverified
// accounts are rejected so the OTP flow cannot be skipped.
func (s *UserService) Authenticate(ctx context.Context, email, password, ipAddress string) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	if !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrUserInactive
	}

	if !user.IsVerified() {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrEmailNotVerified
	}

	now := s.now()
	updates := map[string]any{
		"last_login_at": &now,
		"last_login_ip": strings.TrimSpace(ipAddress),
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: record login: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	user.LastLoginAt = &now
	user.LastLoginIP = strings.TrimSpace(ipAddress)
	return user, nil
}

// GetByID loads a user by identifier.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	return &user, nil
}

// GetByEmail loads a user by normalised email address.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	return &user, nil
}

// UpdateProfile applies the provided profile changes.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Company != nil {
		updates["company"] = strings.TrimSpace(*input.Company)
	}
	if input.Phone != nil {
		updates["phone"] = strings.TrimSpace(*input.Phone)
	}
	if input.Avatar != nil {
		updates["avatar"] = strings.TrimSpace(*input.Avatar)
	}

	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: update profile: %w", err)
	}

	return s.GetByID(ctx, userID)
}

// ChangePassword verifies the current password before storing a new hash.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(newPassword) == "" {
		return apperrors.NewBadRequest("new password is required")
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !crypto.VerifyPassword(user.Password, currentPassword) {
		return apperrors.ErrInvalidCredentials
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("user service: hash password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(user).Update("password", hashed).Error; err != nil {
		return fmt.Errorf("user service: update password: %w", err)
	}

	return nil
}

// SetAvailability updates an administrator's availability state.
func (s *UserService) SetAvailability(ctx context.Context, userID, availability string) (*models.User, error) {
	ctx = ensureContext(ctx)

	availability = strings.ToLower(strings.TrimSpace(availability))
	switch availability {
	case models.AvailabilityOnline, models.AvailabilityBusy, models.AvailabilityOffline:
	default:
		return nil, apperrors.NewBadRequest("availability must be one of online, busy, offline")
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		return nil, apperrors.ErrForbidden
	}

	if err := s.db.WithContext(ctx).Model(user).Update("availability", availability).Error; err != nil {
		return nil, fmt.Errorf("user service: set availability: %w", err)
	}

	user.Availability = availability
	return user, nil
}

// SetActive toggles an account's active flag. Used from the admin console.
func (s *UserService) SetActive(ctx context.Context, userID string, active bool) error {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(user).Update("is_active", active).Error; err != nil {
		return fmt.Errorf("user service: set active: %w", err)
	}

	return nil
}

// SetAdmin grants or revokes the admin role. Demoting does not touch an
// existing MFA enrolment, so a re-promoted admin keeps their authenticator.
func (s *UserService) SetAdmin(ctx context.Context, userID string, admin bool) error {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(user).Update("is_admin", admin).Error; err != nil {
		return fmt.Errorf("user service: set admin: %w", err)
	}

	return nil
}

// SetMFAEnabled records whether the user completed MFA enrolment.
func (s *UserService) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	ctx = ensureContext(ctx)

	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", strings.TrimSpace(userID)).
		Update("mfa_enabled", enabled).Error; err != nil {
		return fmt.Errorf("user service: set mfa enabled: %w", err)
	}

	return nil
}

// List returns a paginated user listing with optional filters.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 25
	}

	query := s.db.WithContext(ctx).Model(&models.User{})
	if opts.Filters.IsAdmin != nil {
		query = query.Where("is_admin = ?", *opts.Filters.IsAdmin)
	}
	if opts.Filters.IsActive != nil {
		query = query.Where("is_active = ?", *opts.Filters.IsActive)
	}
	if q := strings.TrimSpace(opts.Filters.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(company) LIKE ?", pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}

	return users, total, nil
}
