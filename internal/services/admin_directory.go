package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/models"
)

// AdminDirectory resolves the current set of administrators. Notification
// fan-out and the talk-request status deriver both depend on it.
type AdminDirectory interface {
	// Admins returns all active administrator accounts.
	Admins(ctx context.Context) ([]models.User, error)
	// AnyAvailable reports whether at least one admin is in the given
	// availability state.
	AnyAvailable(ctx context.Context, availability string) (bool, error)
}

type dbAdminDirectory struct {
	db *gorm.DB
}

// NewAdminDirectory builds a database-backed AdminDirectory.
func NewAdminDirectory(db *gorm.DB) (AdminDirectory, error) {
	if db == nil {
		return nil, errors.New("admin directory: db is required")
	}
	return &dbAdminDirectory{db: db}, nil
}

func (d *dbAdminDirectory) Admins(ctx context.Context) ([]models.User, error) {
	ctx = ensureContext(ctx)

	var admins []models.User
	if err := d.db.WithContext(ctx).
		Where("is_admin = ? AND is_active = ?", true, true).
		Order("created_at ASC").
		Find(&admins).Error; err != nil {
		return nil, fmt.Errorf("admin directory: list admins: %w", err)
	}

	return admins, nil
}

func (d *dbAdminDirectory) AnyAvailable(ctx context.Context, availability string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := d.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_admin = ? AND is_active = ? AND availability = ?", true, true, availability).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("admin directory: count by availability: %w", err)
	}

	return count > 0, nil
}
