package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/atelierhq/atelier/internal/auth"
	"github.com/atelierhq/atelier/internal/services"
	"github.com/atelierhq/atelier/pkg/logger"
)

const (
	defaultNotificationRetention = 30 * 24 * time.Hour
	defaultSessionSpec           = "@hourly"
	defaultOTPSpec               = "@hourly"
	defaultNotificationSpec      = "@daily"
)

// Cleaner runs background maintenance jobs: purging expired sessions and
// verification codes, and pruning old read notifications.
type Cleaner struct {
	sessions      *iauth.SessionService
	otps          *services.OTPService
	notifications *services.NotificationService
	cron          *cron.Cron
	log           *zap.Logger
	enabled       bool
	retention     time.Duration

	sessionSchedule      string
	otpSchedule          string
	notificationSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNotificationRetention adjusts how long read notifications are kept.
func WithNotificationRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.retention = d
		}
	}
}

// WithSessionSchedule overrides the cron expression for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithOTPSchedule overrides the cron expression for verification code cleanup.
func WithOTPSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.otpSchedule = spec
		}
	}
}

// WithNotificationSchedule overrides the cron expression for notification pruning.
func WithNotificationSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.notificationSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(sessions *iauth.SessionService, otps *services.OTPService, notifications *services.NotificationService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:             sessions,
		otps:                 otps,
		notifications:        notifications,
		retention:            defaultNotificationRetention,
		sessionSchedule:      defaultSessionSpec,
		otpSchedule:          defaultOTPSpec,
		notificationSchedule: defaultNotificationSpec,
		log:                  logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.sessions != nil || cleaner.otps != nil || cleaner.notifications != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			if _, err := c.sessions.CleanupExpired(context.Background()); err != nil {
				c.log.Warn("session cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.otps != nil {
		if _, err := c.cron.AddFunc(c.otpSchedule, func() {
			if _, err := c.otps.CleanupExpired(context.Background()); err != nil {
				c.log.Warn("verification code cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.notifications != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.notificationSchedule, func() {
			if _, err := c.notifications.CleanupRead(context.Background(), c.retention); err != nil {
				c.log.Warn("notification cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		if _, err := c.sessions.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.otps != nil {
		if _, err := c.otps.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.notifications != nil && c.retention > 0 {
		if _, err := c.notifications.CleanupRead(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
