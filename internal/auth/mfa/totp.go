package mfa

import (
	cryptoRand "crypto/rand"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/pkg/crypto"
)

const (
	defaultIssuer          = "Atelier"
	defaultBackupCodeCount = 10
	defaultQRCodeSize      = 256
)

// ErrNotEnrolled is returned when a user has no provisioned MFA secret.
var ErrNotEnrolled = errors.New("totp: not enrolled")

// Option allows customising the TOTP service.
type Option func(*TOTPService)

// WithIssuer overrides the default issuer string encoded in provisioning URIs.
func WithIssuer(issuer string) Option {
	return func(s *TOTPService) {
		if strings.TrimSpace(issuer) != "" {
			s.issuer = issuer
		}
	}
}

// WithBackupCodeCount overrides the number of backup codes generated for users.
func WithBackupCodeCount(count int) Option {
	return func(s *TOTPService) {
		if count > 0 {
			s.backupCodes = count
		}
	}
}

// WithQRCodeSize controls the pixel size of generated QR codes.
func WithQRCodeSize(size int) Option {
	return func(s *TOTPService) {
		if size > 0 {
			s.qrCodeSize = size
		}
	}
}

// WithClock injects a custom clock, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(s *TOTPService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// TOTPService owns the admin MFA lifecycle: provisioning, QR rendering,
// confirmation, verification, and backup codes. Secrets are stored
// AES-GCM encrypted; backup codes bcrypt hashed.
type TOTPService struct {
	db            *gorm.DB
	encryptionKey []byte

	issuer      string
	backupCodes int
	qrCodeSize  int
	now         func() time.Time
}

// NewTOTPService constructs a TOTP service backed by the provided database.
func NewTOTPService(db *gorm.DB, encryptionKey []byte, opts ...Option) (*TOTPService, error) {
	if db == nil {
		return nil, errors.New("totp: db is required")
	}
	if len(encryptionKey) == 0 {
		return nil, errors.New("totp: encryption key is required")
	}

	service := &TOTPService{
		db:            db,
		encryptionKey: encryptionKey,
		issuer:        defaultIssuer,
		backupCodes:   defaultBackupCodeCount,
		qrCodeSize:    defaultQRCodeSize,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// GenerateSecret provisions a fresh TOTP secret plus backup codes for an
// administrator. Re-enrolling replaces any earlier secret and clears its
// confirmation, so a lost authenticator cannot keep an old secret alive.
// The plain backup codes are returned exactly once; only bcrypt hashes
// are stored.
func (s *TOTPService) GenerateSecret(userID, accountName string) (*otp.Key, []string, error) {
	userID = strings.TrimSpace(userID)
	accountName = strings.TrimSpace(accountName)
	if userID == "" || accountName == "" {
		return nil, nil, errors.New("totp: user id and account name are required")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("totp: generate key: %w", err)
	}

	backupCodes, codesJSON, err := s.newBackupCodes()
	if err != nil {
		return nil, nil, err
	}

	encryptedSecret, err := crypto.Encrypt([]byte(key.Secret()), s.encryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("totp: encrypt secret: %w", err)
	}

	if err := s.upsertSecret(userID, encryptedSecret, codesJSON); err != nil {
		return nil, nil, err
	}

	return key, backupCodes, nil
}

// newBackupCodes returns the plain codes alongside their hashed, JSON
// encoded form ready for storage.
func (s *TOTPService) newBackupCodes() ([]string, datatypes.JSON, error) {
	plain := make([]string, s.backupCodes)
	hashed := make([]string, s.backupCodes)
	for i := range plain {
		code, err := generateBackupCode()
		if err != nil {
			return nil, nil, fmt.Errorf("totp: generate backup code: %w", err)
		}
		hash, err := crypto.HashPassword(code)
		if err != nil {
			return nil, nil, fmt.Errorf("totp: hash backup code: %w", err)
		}
		plain[i] = code
		hashed[i] = hash
	}

	encoded, err := json.Marshal(hashed)
	if err != nil {
		return nil, nil, fmt.Errorf("totp: marshal backup codes: %w", err)
	}
	return plain, datatypes.JSON(encoded), nil
}

func (s *TOTPService) upsertSecret(userID, encryptedSecret string, codes datatypes.JSON) error {
	var secret models.MFASecret
	err := s.db.Where("user_id = ?", userID).First(&secret).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		secret = models.MFASecret{
			UserID:      userID,
			Secret:      encryptedSecret,
			BackupCodes: codes,
		}
		if err := s.db.Create(&secret).Error; err != nil {
			return fmt.Errorf("totp: create mfa secret: %w", err)
		}
	case err != nil:
		return fmt.Errorf("totp: load mfa secret: %w", err)
	default:
		secret.Secret = encryptedSecret
		secret.BackupCodes = codes
		secret.ConfirmedAt = nil
		secret.LastUsedAt = nil
		if err := s.db.Save(&secret).Error; err != nil {
			return fmt.Errorf("totp: update mfa secret: %w", err)
		}
	}
	return nil
}

// Confirm checks the first code after enrolment and, when it matches,
// activates the secret. Login only consults confirmed secrets.
func (s *TOTPService) Confirm(userID, code string) (bool, error) {
	valid, err := s.VerifyCode(userID, code)
	if err != nil || !valid {
		return valid, err
	}

	now := s.now()
	err = s.db.Model(&models.MFASecret{}).
		Where("user_id = ? AND confirmed_at IS NULL", strings.TrimSpace(userID)).
		Update("confirmed_at", &now).Error
	if err != nil {
		return false, fmt.Errorf("totp: confirm secret: %w", err)
	}

	return true, nil
}

// VerifyCode checks a submitted TOTP code against the stored secret.
func (s *TOTPService) VerifyCode(userID, code string) (bool, error) {
	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" || code == "" {
		return false, errors.New("totp: user id and code are required")
	}

	secret, err := s.loadSecret(userID)
	if err != nil {
		return false, err
	}

	rawSecret, err := crypto.Decrypt(secret.Secret, s.encryptionKey)
	if err != nil {
		return false, fmt.Errorf("totp: decrypt secret: %w", err)
	}

	valid := totp.Validate(code, string(rawSecret))
	if valid {
		now := s.now()
		if err := s.db.Model(secret).Update("last_used_at", &now).Error; err != nil {
			return false, fmt.Errorf("totp: update last used: %w", err)
		}
	}

	return valid, nil
}

// UseBackupCode burns one backup code. A matching code is removed from
// the stored set so it can never be replayed.
func (s *TOTPService) UseBackupCode(userID, code string) (bool, error) {
	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" || code == "" {
		return false, errors.New("totp: user id and code are required")
	}

	secret, err := s.loadSecret(userID)
	if err != nil {
		return false, err
	}

	var hashedCodes []string
	if err := json.Unmarshal(secret.BackupCodes, &hashedCodes); err != nil {
		return false, fmt.Errorf("totp: unmarshal backup codes: %w", err)
	}

	consumed := false
	for i, stored := range hashedCodes {
		if crypto.VerifyPassword(stored, code) {
			hashedCodes = append(hashedCodes[:i], hashedCodes[i+1:]...)
			consumed = true
			break
		}
	}

	if !consumed {
		return false, nil
	}

	encoded, err := json.Marshal(hashedCodes)
	if err != nil {
		return false, fmt.Errorf("totp: marshal backup codes: %w", err)
	}

	if err := s.db.Model(secret).Update("backup_codes", datatypes.JSON(encoded)).Error; err != nil {
		return false, fmt.Errorf("totp: update backup codes: %w", err)
	}

	return true, nil
}

// RemainingBackupCodes returns the number of backup codes still available.
func (s *TOTPService) RemainingBackupCodes(userID string) (int, error) {
	secret, err := s.loadSecret(strings.TrimSpace(userID))
	if err != nil {
		return 0, err
	}

	var hashedCodes []string
	if err := json.Unmarshal(secret.BackupCodes, &hashedCodes); err != nil {
		return 0, fmt.Errorf("totp: unmarshal backup codes: %w", err)
	}

	return len(hashedCodes), nil
}

// IsConfirmed reports whether the user completed MFA enrolment.
func (s *TOTPService) IsConfirmed(userID string) (bool, error) {
	secret, err := s.loadSecret(strings.TrimSpace(userID))
	if err != nil {
		if errors.Is(err, ErrNotEnrolled) {
			return false, nil
		}
		return false, err
	}
	return secret.ConfirmedAt != nil, nil
}

// Disable removes the stored secret and backup codes for a user.
func (s *TOTPService) Disable(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("totp: user id is required")
	}

	if err := s.db.Where("user_id = ?", userID).Delete(&models.MFASecret{}).Error; err != nil {
		return fmt.Errorf("totp: delete mfa secret: %w", err)
	}

	return nil
}

// GenerateQRCode renders the provisioning URI as a PNG for enrolment.
func (s *TOTPService) GenerateQRCode(key *otp.Key) ([]byte, error) {
	if key == nil {
		return nil, errors.New("totp: key is required")
	}
	return qrcode.Encode(key.String(), qrcode.Medium, s.qrCodeSize)
}

func (s *TOTPService) loadSecret(userID string) (*models.MFASecret, error) {
	if userID == "" {
		return nil, errors.New("totp: user id is required")
	}

	var secret models.MFASecret
	if err := s.db.Where("user_id = ?", userID).First(&secret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("totp: load secret: %w", err)
	}

	return &secret, nil
}

// generateBackupCode yields 8 base32 characters, enough entropy for a
// single-use credential while staying typeable.
func generateBackupCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := cryptoRand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.EncodeToString(buf)[:8], nil
}
