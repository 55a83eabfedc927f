// Package storage persists broker sessions in a relational database.
// SQLite is the default backend; a postgres:// DSN switches to PostgreSQL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when no session matches the given key.
var ErrNotFound = errors.New("session not found")

// DefaultSQLitePath is the on-disk location used when no DSN is configured.
const DefaultSQLitePath = "data/gcal_mcp.db"

// Store wraps the gorm database handle.
type Store struct {
	db *gorm.DB
}

// New opens the session database. An empty dsn selects the default SQLite
// file; a postgres:// or postgresql:// dsn selects PostgreSQL; anything else
// is treated as a SQLite file path.
func New(dsn string) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var db *gorm.DB
	var err error

	switch {
	case dsn == "":
		if mkErr := os.MkdirAll(filepath.Dir(DefaultSQLitePath), 0o700); mkErr != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", mkErr)
		}
		db, err = gorm.Open(sqlite.Open(DefaultSQLitePath), gormConfig)
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		db, err = gorm.Open(sqlite.Open(dsn), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping verifies the underlying database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// CreateSession inserts a new session record.
func (s *Store) CreateSession(rec *SessionRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByAccessHash returns the session whose access token hashes to hash.
// Expired sessions are not returned; revoked sessions are, so callers can
// distinguish revocation from absence.
func (s *Store) GetByAccessHash(hash string) (*SessionRecord, error) {
	var rec SessionRecord
	err := s.db.Where("access_token_hash = ?", hash).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	if !rec.Revoked && !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// GetByID returns the session with the given identifier.
func (s *Store) GetByID(id string) (*SessionRecord, error) {
	var rec SessionRecord
	err := s.db.Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return &rec, nil
}

// GetByRefreshHash returns the session whose refresh token hashes to hash.
// Expiry and revocation follow the same rules as GetByAccessHash, so an
// expired session cannot be redeemed through the refresh_token grant.
func (s *Store) GetByRefreshHash(hash string) (*SessionRecord, error) {
	var rec SessionRecord
	err := s.db.Where("refresh_token_hash = ? AND refresh_token_hash <> ''", hash).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	if !rec.Revoked && !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// UpdateSession persists rotated token hashes and a re-sealed envelope.
func (s *Store) UpdateSession(rec *SessionRecord) error {
	if err := s.db.Save(rec).Error; err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// RevokeByHash marks the session matching the given token hash as revoked,
// matching the access token column first and the refresh token column second.
// Revocation is terminal; the record is kept so later lookups still see it.
func (s *Store) RevokeByHash(hash string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"revoked":    true,
		"revoked_at": &now,
	}

	res := s.db.Model(&SessionRecord{}).Where("access_token_hash = ?", hash).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to revoke session: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	res = s.db.Model(&SessionRecord{}).Where("refresh_token_hash = ? AND refresh_token_hash <> ''", hash).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to revoke session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session by ID. Deleting a missing session is not
// an error.
func (s *Store) DeleteSession(id string) error {
	if err := s.db.Delete(&SessionRecord{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CleanupExpired removes expired, non-revoked sessions. Revoked sessions are
// kept so revocation stays observable across restarts.
func (s *Store) CleanupExpired() (int64, error) {
	res := s.db.Where("expires_at < ? AND revoked = ?", time.Now(), false).Delete(&SessionRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to cleanup sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
