package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/atelierhq/atelier/internal/auth"
	testutil "github.com/atelierhq/atelier/internal/database/testutil"
	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/internal/services"
)

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	now := time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret: "cleanup-secret",
		Issuer: "test-suite",
		Clock:  clock,
	})
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{
		RefreshTokenTTL: time.Hour,
		RefreshLength:   16,
		Clock:           clock,
	})
	require.NoError(t, err)

	otpSvc, err := services.NewOTPService(db, nil, services.WithOTPClock(clock))
	require.NoError(t, err)

	admins, err := services.NewAdminDirectory(db)
	require.NoError(t, err)
	notificationSvc, err := services.NewNotificationService(db, admins, nil, nil)
	require.NoError(t, err)

	user := seedUser(t, db, "cleanup@example.com")

	// Expired session alongside an active one.
	_, expiredSession, err := sessionSvc.CreateSession(user, iauth.SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", expiredSession.ID).
		Update("expires_at", now.Add(-2*time.Hour)).Error)

	_, activeSession, err := sessionSvc.CreateSession(user, iauth.SessionMetadata{})
	require.NoError(t, err)

	// Stale verification code.
	require.NoError(t, db.Create(&models.EmailOTP{
		UserID:    user.ID,
		CodeHash:  "stale-hash",
		ExpiresAt: now.Add(-time.Hour),
	}).Error)

	// Old read notification alongside a fresh unread one.
	staleRead := now.Add(-60 * 24 * time.Hour)
	require.NoError(t, db.Create(&models.Notification{
		UserID: user.ID,
		Type:   "project.update",
		Title:  "Old",
		IsRead: true,
		ReadAt: &staleRead,
	}).Error)
	require.NoError(t, db.Create(&models.Notification{
		UserID: user.ID,
		Type:   "project.update",
		Title:  "Fresh",
	}).Error)

	c := NewCleaner(sessionSvc, otpSvc, notificationSvc,
		WithNotificationRetention(30*24*time.Hour),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(context.Background()))

	var session models.Session
	err = db.First(&session, "id = ?", expiredSession.ID).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	require.NoError(t, db.First(&session, "id = ?", activeSession.ID).Error)

	var otpCount int64
	require.NoError(t, db.Model(&models.EmailOTP{}).Count(&otpCount).Error)
	require.Zero(t, otpCount)

	var notifications []models.Notification
	require.NoError(t, db.Find(&notifications).Error)
	require.Len(t, notifications, 1)
	require.Equal(t, "Fresh", notifications[0].Title)
}

func TestCleanerStartAndStop(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "cleanup-secret"})
	require.NoError(t, err)
	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{})
	require.NoError(t, err)

	c := NewCleaner(sessionSvc, nil, nil,
		WithSessionSchedule("@every 1h"),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.Start())

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := &models.User{
		Name:     "Cleanup User",
		Email:    email,
		Password: "not-a-real-hash",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
