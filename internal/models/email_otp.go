package models

import "time"

// EmailOTP stores one-time verification codes issued during signup.
// Codes are stored hashed, expire after a short window, and are single use.
type EmailOTP struct {
	BaseModel

	UserID     string     `gorm:"type:uuid;not null;index" json:"user_id"`
	CodeHash   string     `gorm:"not null" json:"-"`
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at"`
}
