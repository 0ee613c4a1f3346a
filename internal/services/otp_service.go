package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/pkg/crypto"
	"github.com/atelierhq/atelier/pkg/mail"
)

const (
	defaultOTPExpiry = 10 * time.Minute
	defaultOTPDigits = 6
)

var (
	// ErrOTPNotFound indicates no matching code exists for the user.
	ErrOTPNotFound = errors.New("otp: not found")
	// ErrOTPExpired indicates the code has passed its expiry window.
	ErrOTPExpired = errors.New("otp: expired")
	// ErrOTPConsumed signals the code was already used.
	ErrOTPConsumed = errors.New("otp: already used")
	// ErrOTPMismatch indicates the submitted code does not match.
	ErrOTPMismatch = errors.New("otp: code mismatch")
)

// OTPOption customises the OTPService.
type OTPOption func(*OTPService)

// WithOTPExpiry overrides the code lifetime.
func WithOTPExpiry(d time.Duration) OTPOption {
	return func(s *OTPService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithOTPDigits adjusts the number of digits in generated codes.
func WithOTPDigits(digits int) OTPOption {
	return func(s *OTPService) {
		if digits > 0 {
			s.digits = digits
		}
	}
}

// WithOTPClock injects a custom time source.
func WithOTPClock(clock func() time.Time) OTPOption {
	return func(s *OTPService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// OTPService issues and verifies single-use numeric email verification codes.
type OTPService struct {
	db     *gorm.DB
	mailer mail.Mailer
	expiry time.Duration
	digits int
	now    func() time.Time
}

// NewOTPService constructs an OTP service with the provided dependencies.
func NewOTPService(db *gorm.DB, mailer mail.Mailer, opts ...OTPOption) (*OTPService, error) {
	if db == nil {
		return nil, errors.New("otp service: db is required")
	}

	service := &OTPService{
		db:     db,
		mailer: mailer,
		expiry: defaultOTPExpiry,
		digits: defaultOTPDigits,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// IssueCode generates a fresh code for the given user, invalidating any
// previous codes, and dispatches it by email when a mailer is configured.
// The plaintext code is returned for test harnesses; only its hash is stored.
func (s *OTPService) IssueCode(ctx context.Context, userID, email string) (string, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	email = normalizeEmail(email)
	if userID == "" {
		return "", errors.New("otp service: user id is required")
	}
	if email == "" {
		return "", errors.New("otp service: email is required")
	}

	code, err := crypto.GenerateNumericCode(s.digits)
	if err != nil {
		return "", fmt.Errorf("otp service: generate code: %w", err)
	}

	now := s.now()
	record := models.EmailOTP{
		UserID:    userID,
		CodeHash:  otpHash(code),
		ExpiresAt: now.Add(s.expiry),
	}

	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.EmailOTP{}).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("otp service: cleanup existing: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("otp service: create code: %w", err)
	}

	if s.mailer != nil {
		message := mail.Message{
			To:      []string{email},
			Subject: "Your Atelier verification code",
			Body:    s.codeBody(code),
		}
		if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrSMTPDisabled) {
			return "", fmt.Errorf("otp service: send email: %w", mailErr)
		}
	}

	return code, nil
}

// VerifyCode validates and consumes the latest code for a user.
func (s *OTPService) VerifyCode(ctx context.Context, userID, code string) error {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" || code == "" {
		return errors.New("otp service: user id and code are required")
	}

	var record models.EmailOTP
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOTPNotFound
	}
	if err != nil {
		return fmt.Errorf("otp service: find code: %w", err)
	}

	now := s.now()
	if record.ConsumedAt != nil {
		return ErrOTPConsumed
	}
	if record.ExpiresAt.Before(now) {
		return ErrOTPExpired
	}
	if record.CodeHash != otpHash(code) {
		return ErrOTPMismatch
	}

	// Guard against a concurrent verify consuming the same row.
	result := s.db.WithContext(ctx).
		Model(&models.EmailOTP{}).
		Where("id = ? AND consumed_at IS NULL", record.ID).
		Update("consumed_at", now)
	if result.Error != nil {
		return fmt.Errorf("otp service: consume code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOTPConsumed
	}

	return nil
}

// CleanupExpired removes expired and consumed codes.
func (s *OTPService) CleanupExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	now := s.now()

	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR consumed_at IS NOT NULL", now).
		Delete(&models.EmailOTP{})
	if result.Error != nil {
		return 0, fmt.Errorf("otp service: cleanup expired: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func (s *OTPService) codeBody(code string) string {
	minutes := int(s.expiry / time.Minute)
	return fmt.Sprintf("Welcome to Atelier!\n\nYour verification code is: %s\n\nIt expires in %d minutes. If you did not create an account, you can ignore this message.\n", code, minutes)
}

func otpHash(code string) string {
	digest := sha256.Sum256([]byte(code))
	return hex.EncodeToString(digest[:])
}
