package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Admin availability states used by the talk-request status deriver.
const (
	AvailabilityOnline  = "online"
	AvailabilityBusy    = "busy"
	AvailabilityOffline = "offline"
)

// User describes a portal account. Clients and administrators share the same
// table; IsAdmin gates the admin console.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Name     string `gorm:"not null" json:"name"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	Company string `json:"company"`
	Phone   string `json:"phone"`
	Avatar  string `json:"avatar"`

	IsAdmin  bool `gorm:"default:false;index" json:"is_admin"`
	IsActive bool `gorm:"default:true" json:"is_active"`

	VerifiedAt *time.Time `json:"verified_at"`

	// Availability only carries meaning for administrators.
	Availability string `gorm:"type:varchar(16);default:'offline'" json:"availability"`

	MFAEnabled bool       `gorm:"default:false" json:"mfa_enabled"`
	MFASecret  *MFASecret `gorm:"foreignKey:UserID" json:"-"`

	Sessions []Session `gorm:"foreignKey:UserID" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"last_login_ip"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// IsVerified reports whether the account completed email verification.
func (u *User) IsVerified() bool {
	return u.VerifiedAt != nil
}
