package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/gcal-mcp-remote/internal/storage"
)

// TokenStore is the durable, tamper-evident home of broker sessions. Tokens
// are opaque random strings; the database sees only their SHA-256 hashes and
// a sealed credential envelope. The sealing secret never leaves the process.
type TokenStore struct {
	db     *storage.Store
	sealer *Sealer
	logger *slog.Logger
}

// NewTokenStore creates a token store over the given database and sealer.
func NewTokenStore(db *storage.Store, sealer *Sealer, logger *slog.Logger) *TokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenStore{
		db:     db,
		sealer: sealer,
		logger: logger,
	}
}

// hashToken returns the storage key for a token value.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Put seals the session's credential and stores it keyed by the hashes of
// the issued tokens. Returns the session identifier.
func (ts *TokenStore) Put(cred UpstreamCredential, accessToken, refreshToken string, expiresAt time.Time) (string, error) {
	payload, err := json.Marshal(cred)
	if err != nil {
		return "", fmt.Errorf("failed to encode credential: %w", err)
	}

	envelope, err := ts.sealer.Seal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to seal credential: %w", err)
	}

	rec := &storage.SessionRecord{
		ID:              uuid.NewString(),
		AccessTokenHash: hashToken(accessToken),
		Envelope:        envelope,
		ExpiresAt:       expiresAt,
	}
	if refreshToken != "" {
		rec.RefreshTokenHash = hashToken(refreshToken)
	}

	if err := ts.db.CreateSession(rec); err != nil {
		return "", err
	}

	ts.logger.Debug("Stored broker session",
		"session_id", rec.ID,
		"user_email", hashForLogging(cred.UserEmail),
		"expires_at", expiresAt,
	)

	return rec.ID, nil
}

// Get resolves a bearer token to its session. Fails with NotFoundError when
// the token is unknown or expired, RevokedCredentialError when the session
// was revoked, and IntegrityError when the stored envelope fails seal
// verification.
func (ts *TokenStore) Get(accessToken string) (*BrokerSession, error) {
	rec, err := ts.db.GetByAccessHash(hashToken(accessToken))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{Key: hashForLogging(accessToken)}
		}
		return nil, err
	}

	return ts.openRecord(rec)
}

// GetByRefreshToken resolves a broker refresh token to its session.
func (ts *TokenStore) GetByRefreshToken(refreshToken string) (*BrokerSession, error) {
	rec, err := ts.db.GetByRefreshHash(hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{Key: hashForLogging(refreshToken)}
		}
		return nil, err
	}

	return ts.openRecord(rec)
}

// openRecord checks revocation and unseals the credential envelope.
func (ts *TokenStore) openRecord(rec *storage.SessionRecord) (*BrokerSession, error) {
	if rec.Revoked {
		return nil, &RevokedCredentialError{SessionID: rec.ID}
	}

	payload, err := ts.sealer.Open(rec.Envelope)
	if err != nil {
		// IntegrityError from the sealer passes through unchanged
		return nil, err
	}

	var cred UpstreamCredential
	if err := json.Unmarshal(payload, &cred); err != nil {
		return nil, &IntegrityError{Err: err}
	}

	return &BrokerSession{
		ID:         rec.ID,
		Credential: cred,
		IssuedAt:   rec.CreatedAt.Unix(),
		Revoked:    rec.Revoked,
	}, nil
}

// Rotate replaces a session's tokens and credential after a refresh grant.
// The session identity and revocation state are preserved.
func (ts *TokenStore) Rotate(sessionID string, cred UpstreamCredential, newAccessToken, newRefreshToken string, expiresAt time.Time) error {
	rec, err := ts.db.GetByRefreshHash(hashToken(newRefreshToken))
	if err == nil && rec.ID != sessionID {
		return fmt.Errorf("refresh token collision")
	}

	old, err := ts.findByID(sessionID)
	if err != nil {
		return err
	}
	if old.Revoked {
		return &RevokedCredentialError{SessionID: sessionID}
	}

	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	envelope, err := ts.sealer.Seal(payload)
	if err != nil {
		return fmt.Errorf("failed to seal credential: %w", err)
	}

	old.AccessTokenHash = hashToken(newAccessToken)
	if newRefreshToken != "" {
		old.RefreshTokenHash = hashToken(newRefreshToken)
	}
	old.Envelope = envelope
	old.ExpiresAt = expiresAt

	return ts.db.UpdateSession(old)
}

// UpdateCredential re-seals a session's credential in place, leaving the
// token hashes untouched. Used when the upstream token was refreshed without
// rotating the broker tokens.
func (ts *TokenStore) UpdateCredential(sessionID string, cred UpstreamCredential) error {
	rec, err := ts.findByID(sessionID)
	if err != nil {
		return err
	}
	if rec.Revoked {
		return &RevokedCredentialError{SessionID: sessionID}
	}

	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	envelope, err := ts.sealer.Seal(payload)
	if err != nil {
		return fmt.Errorf("failed to seal credential: %w", err)
	}

	rec.Envelope = envelope
	return ts.db.UpdateSession(rec)
}

// findByID loads a record by session ID.
func (ts *TokenStore) findByID(sessionID string) (*storage.SessionRecord, error) {
	rec, err := ts.db.GetByID(sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{Key: sessionID}
		}
		return nil, err
	}
	return rec, nil
}

// Revoke marks the session behind a token as revoked. Revocation is terminal
// and survives process restarts; later Get calls fail with
// RevokedCredentialError.
func (ts *TokenStore) Revoke(token string) error {
	err := ts.db.RevokeByHash(hashToken(token))
	if errors.Is(err, storage.ErrNotFound) {
		return &NotFoundError{Key: hashForLogging(token)}
	}
	return err
}

// Delete removes a session entirely. Idempotent.
func (ts *TokenStore) Delete(sessionID string) error {
	return ts.db.DeleteSession(sessionID)
}

// StartCleanup launches a goroutine that removes expired sessions on the
// given interval until stop is closed.
func (ts *TokenStore) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deleted, err := ts.db.CleanupExpired()
				if err != nil {
					ts.logger.Warn("Session cleanup failed", "error", err)
					continue
				}
				if deleted > 0 {
					ts.logger.Debug("Cleaned up expired sessions", "deleted", deleted)
				}
			case <-stop:
				return
			}
		}
	}()
}
