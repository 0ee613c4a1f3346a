package database

import (
	"os"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.EmailOTP{},
		&models.MFASecret{},
		&models.CacheEntry{},
		&models.Project{},
		&models.Milestone{},
		&models.Task{},
		&models.ProjectFile{},
		&models.ProjectMessage{},
		&models.SupportTicket{},
		&models.TicketReply{},
		&models.Invoice{},
		&models.TalkRequest{},
		&models.TalkTranscriptEntry{},
		&models.Notification{},
	)
}

// SeedData guarantees at least one administrator account exists so the admin
// console is reachable on a fresh install. Credentials come from
// ATELIER_ADMIN_EMAIL / ATELIER_ADMIN_PASSWORD; when unset, seeding is a no-op
// and the first admin must be promoted manually.
func SeedData(db *gorm.DB) error {
	var adminCount int64
	if err := db.Model(&models.User{}).Where("is_admin = ?", true).Count(&adminCount).Error; err != nil {
		return err
	}
	if adminCount > 0 {
		return nil
	}

	email := strings.TrimSpace(strings.ToLower(os.Getenv("ATELIER_ADMIN_EMAIL")))
	password := os.Getenv("ATELIER_ADMIN_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	admin := models.User{
		Name:         "Administrator",
		Email:        email,
		Password:     hash,
		IsAdmin:      true,
		IsActive:     true,
		VerifiedAt:   &now,
		Availability: models.AvailabilityOffline,
	}

	return db.Where(models.User{Email: email}).Attrs(admin).FirstOrCreate(&models.User{}).Error
}
