package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	testutil "github.com/atelierhq/atelier/internal/database/testutil"
	"github.com/atelierhq/atelier/internal/models"
	apperrors "github.com/atelierhq/atelier/pkg/errors"
)

func newUserService(t *testing.T, db *gorm.DB) (*UserService, *OTPService) {
	t.Helper()

	otps, err := NewOTPService(db, nil)
	require.NoError(t, err)

	users, err := NewUserService(db, otps)
	require.NoError(t, err)

	return users, otps
}

func registerVerifiedUser(t *testing.T, users *UserService, otps *OTPService, email string) *models.User {
	t.Helper()

	ctx := context.Background()
	user, err := users.Register(ctx, RegisterInput{
		Name:     "Test User",
		Email:    email,
		Password: "Password123!",
	})
	require.NoError(t, err)

	code, err := otps.IssueCode(ctx, user.ID, user.Email)
	require.NoError(t, err)

	verified, err := users.VerifyEmail(ctx, email, code)
	require.NoError(t, err)
	require.True(t, verified.IsVerified())

	return verified
}

func TestRegisterNormalisesAndHashes(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	users, _ := newUserService(t, db)
	ctx := context.Background()

	user, err := users.Register(ctx, RegisterInput{
		Name:     "  Maya Chen  ",
		Email:    "  Maya@Example.COM ",
		Password: "Password123!",
		Company:  "Chen Studio",
	})
	require.NoError(t, err)
	require.Equal(t, "Maya Chen", user.Name)
	require.Equal(t, "maya@example.com", user.Email)
	require.NotEqual(t, "Password123!", user.Password)
	require.False(t, user.IsVerified())

	// Signup issues a verification code immediately.
	var count int64
	require.NoError(t, db.Model(&models.EmailOTP{}).Where("user_id = ?", user.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	users, _ := newUserService(t, db)
	ctx := context.Background()

	_, err := users.Register(ctx, RegisterInput{
		Name:     "First",
		Email:    "dup@example.com",
		Password: "Password123!",
	})
	require.NoError(t, err)

	_, err = users.Register(ctx, RegisterInput{
		Name:     "Second",
		Email:    "DUP@example.com",
		Password: "Password123!",
	})
	require.ErrorIs(t, err, apperrors.ErrEmailTaken)
}

func TestVerifyEmailFlow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	users, otps := newUserService(t, db)
	ctx := context.Background()

	user, err := users.Register(ctx, RegisterInput{
		Name:     "Maya",
		Email:    "maya@example.com",
		Password: "Password123!",
	})
	require.NoError(t, err)

	_, err = users.VerifyEmail(ctx, "maya@example.com", "999999")
	require.ErrorIs(t, err, apperrors.ErrOTPInvalid)

	code, err := otps.IssueCode(ctx, user.ID, user.Email)
	require.NoError(t, err)

	verified, err := users.VerifyEmail(ctx, "maya@example.com", code)
	require.NoError(t, err)
	require.True(t, verified.IsVerified())

	// Verifying twice is harmless; the code is not consulted again.
	again, err := users.VerifyEmail(ctx, "maya@example.com", "")
	require.NoError(t, err)
	require.True(t, again.IsVerified())
}

func TestAuthenticate(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	users, otps := newUserService(t, db)
	ctx := context.Background()

	t.Run("unverified account rejected", func(t *testing.T) {
		_, err := users.Register(ctx, RegisterInput{
			Name:     "Pending",
			Email:    "pending@example.com",
			Password: "Password123!",
		})
		require.NoError(t, err)

		_, err = users.Authenticate(ctx, "pending@example.com", "Password123!", "127.0.0.1")
		require.ErrorIs(t, err, apperrors.ErrEmailNotVerified)
	})

	t.Run("success records sign-in", func(t *testing.T) {
		registerVerifiedUser(t, users, otps, "active@example.com")

		user, err := users.Authenticate(ctx, "Active@Example.com", "Password123!", "10.1.2.3")
		require.NoError(t, err)
		require.NotNil(t, user.LastLoginAt)
		require.Equal(t, "10.1.2.3", user.LastLoginIP)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := users.Authenticate(ctx, "active@example.com", "nope", "127.0.0.1")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("unknown email maps to invalid credentials", func(t *testing.T) {
		_, err := users.Authenticate(ctx, "ghost@example.com", "Password123!", "127.0.0.1")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("deactivated account rejected", func(t *testing.T) {
		user := registerVerifiedUser(t, users, otps, "inactive@example.com")
		require.NoError(t, users.SetActive(ctx, user.ID, false))

		_, err := users.Authenticate(ctx, "inactive@example.com", "Password123!", "127.0.0.1")
		require.ErrorIs(t, err, ErrUserInactive)
	})
}

func TestSetAvailability(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	users, otps := newUserService(t, db)
	ctx := context.Background()

	client := registerVerifiedUser(t, users, otps, "client@example.com")
	admin := registerVerifiedUser(t, users, otps, "admin@example.com")
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", admin.ID).Update("is_admin", true).Error)

	_, err := users.SetAvailability(ctx, client.ID, models.AvailabilityOnline)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	updated, err := users.SetAvailability(ctx, admin.ID, "ONLINE")
	require.NoError(t, err)
	require.Equal(t, models.AvailabilityOnline, updated.Availability)

	_, err = users.SetAvailability(ctx, admin.ID, "away")
	requireBadRequest(t, err)
}

func TestListUsersFilters(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	users, otps := newUserService(t, db)
	ctx := context.Background()

	registerVerifiedUser(t, users, otps, "maya@example.com")
	admin := registerVerifiedUser(t, users, otps, "admin@example.com")
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", admin.ID).Update("is_admin", true).Error)

	isAdmin := true
	admins, total, err := users.List(ctx, ListUsersOptions{Filters: UserFilters{IsAdmin: &isAdmin}})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, admins, 1)
	require.Equal(t, admin.ID, admins[0].ID)

	matched, total, err := users.List(ctx, ListUsersOptions{Filters: UserFilters{Query: "MAYA"}})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "maya@example.com", matched[0].Email)
}
