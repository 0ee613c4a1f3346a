package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Config selects and parameterises the database backend. SQLite is the
// zero-config default so a fresh checkout runs without external services.
type Config struct {
	Driver   string
	Path     string // sqlite file path
	DSN      string // full DSN override, skips the builders below
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string
}

// Open connects to the configured backend and returns a gorm handle.
func Open(cfg Config) (*gorm.DB, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		return openSQLite(cfg)
	case "postgres", "postgresql":
		return openPostgres(cfg)
	case "mysql":
		return openMySQL(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// AutoMigrateAndSeed runs schema migration followed by first-boot
// seeding. Called once during startup.
func AutoMigrateAndSeed(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := SeedData(db); err != nil {
		return fmt.Errorf("seed data: %w", err)
	}
	return nil
}
