package models

import (
	"time"

	"gorm.io/datatypes"
)

// MFASecret holds an administrator's encrypted TOTP secret and backup codes.
type MFASecret struct {
	BaseModel

	UserID      string         `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Secret      string         `gorm:"not null" json:"-"`
	BackupCodes datatypes.JSON `json:"-"`
	ConfirmedAt *time.Time     `json:"confirmed_at"`
	LastUsedAt  *time.Time     `json:"last_used_at"`
}
