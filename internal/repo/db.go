// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and PostgreSQL, plus schema migrations.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/noticeboard-backend/internal/config"
	"github.com/tbourn/noticeboard-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a row with the same unique key already exists.
var ErrDuplicate = errors.New("duplicate")

// Open connects to the store selected by cfg.Driver.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return OpenSQLite(cfg.Path)
	case "postgres":
		return OpenPostgres(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// OpenPostgres connects to PostgreSQL using a DSN or URL.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("empty postgres dsn")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// AutoMigrate creates or updates every table owned by the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Employer{},
		&domain.Candidate{},
		&domain.Credit{},
		&domain.Contact{},
		&domain.PendingCheckout{},
		&domain.AppliedTransaction{},
		&domain.PilotFeedback{},
		&domain.VerificationRequest{},
		&domain.VerificationLog{},
		&domain.Idempotency{},
	)
}

// IsDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// supportsRowLocks reports whether SELECT ... FOR UPDATE is meaningful for the
// dialect behind db. SQLite serializes writers and has no row locks.
func supportsRowLocks(db *gorm.DB) bool {
	return db.Dialector != nil && db.Dialector.Name() == "postgres"
}
