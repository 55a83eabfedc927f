package oauth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/teemow/gcal-mcp-remote/internal/storage"
)

func newTestTokenStore(t *testing.T, dbPath string) (*TokenStore, *Sealer) {
	t.Helper()

	db, err := storage.New(dbPath)
	if err != nil {
		t.Fatalf("storage.New() error: %v", err)
	}

	sealer, err := NewSealer(testSealingKey(t))
	if err != nil {
		t.Fatalf("NewSealer() error: %v", err)
	}

	return NewTokenStore(db, sealer, nil), sealer
}

func testCredential() UpstreamCredential {
	return UpstreamCredential{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
		Scope:        "https://www.googleapis.com/auth/calendar",
		UserEmail:    "user@example.com",
	}
}

func TestTokenStore_PutAndGet(t *testing.T) {
	ts, _ := newTestTokenStore(t, filepath.Join(t.TempDir(), "sessions.db"))

	sessionID, err := ts.Put(testCredential(), "access-1", "refresh-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if sessionID == "" {
		t.Fatal("Expected a session ID")
	}

	session, err := ts.Get("access-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if session.ID != sessionID {
		t.Errorf("Session ID = %q, want %q", session.ID, sessionID)
	}
	if session.Credential.UserEmail != "user@example.com" {
		t.Errorf("UserEmail = %q, want user@example.com", session.Credential.UserEmail)
	}
	if session.Credential.RefreshToken != "1//refresh" {
		t.Error("Refresh token did not survive the seal round trip")
	}

	byRefresh, err := ts.GetByRefreshToken("refresh-1")
	if err != nil {
		t.Fatalf("GetByRefreshToken() error: %v", err)
	}
	if byRefresh.ID != sessionID {
		t.Errorf("GetByRefreshToken() session = %q, want %q", byRefresh.ID, sessionID)
	}
}

func TestTokenStore_UnknownToken(t *testing.T) {
	ts, _ := newTestTokenStore(t, filepath.Join(t.TempDir(), "sessions.db"))

	if _, err := ts.Get("never-issued"); !IsNotFound(err) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
	if _, err := ts.GetByRefreshToken("never-issued"); !IsNotFound(err) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
}

func TestTokenStore_ExpiredSession(t *testing.T) {
	ts, _ := newTestTokenStore(t, filepath.Join(t.TempDir(), "sessions.db"))

	if _, err := ts.Put(testCredential(), "access-exp", "refresh-exp", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	if _, err := ts.Get("access-exp"); !IsNotFound(err) {
		t.Errorf("Expected NotFoundError for expired session, got %v", err)
	}
	if _, err := ts.GetByRefreshToken("refresh-exp"); !IsNotFound(err) {
		t.Errorf("Expected NotFoundError for expired session via refresh token, got %v", err)
	}
}

func TestTokenStore_RevocationIsTerminal(t *testing.T) {
	ts, _ := newTestTokenStore(t, filepath.Join(t.TempDir(), "sessions.db"))

	if _, err := ts.Put(testCredential(), "access-rev", "refresh-rev", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	if err := ts.Revoke("access-rev"); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}

	if _, err := ts.Get("access-rev"); !IsRevoked(err) {
		t.Errorf("Expected RevokedCredentialError, got %v", err)
	}
	if _, err := ts.GetByRefreshToken("refresh-rev"); !IsRevoked(err) {
		t.Errorf("Expected RevokedCredentialError via refresh token, got %v", err)
	}
}

func TestTokenStore_RevocationSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sessions.db")

	key := testSealingKey(t)
	sealer, err := NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer() error: %v", err)
	}

	db, err := storage.New(dbPath)
	if err != nil {
		t.Fatalf("storage.New() error: %v", err)
	}
	ts := NewTokenStore(db, sealer, nil)

	if _, err := ts.Put(testCredential(), "access-persist", "refresh-persist", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := ts.Revoke("access-persist"); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}

	// A fresh store over the same database must still see the revocation
	db2, err := storage.New(dbPath)
	if err != nil {
		t.Fatalf("storage.New() reopen error: %v", err)
	}
	ts2 := NewTokenStore(db2, sealer, nil)

	if _, err := ts2.Get("access-persist"); !IsRevoked(err) {
		t.Errorf("Expected RevokedCredentialError after reopen, got %v", err)
	}
}

func TestTokenStore_WrongSealingKey(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sessions.db")

	ts, _ := newTestTokenStore(t, dbPath)
	if _, err := ts.Put(testCredential(), "access-seal", "refresh-seal", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	// Same database, different key: the envelope must fail verification
	db, err := storage.New(dbPath)
	if err != nil {
		t.Fatalf("storage.New() error: %v", err)
	}
	otherSealer, err := NewSealer(testSealingKey(t))
	if err != nil {
		t.Fatalf("NewSealer() error: %v", err)
	}
	other := NewTokenStore(db, otherSealer, nil)

	if _, err := other.Get("access-seal"); !IsIntegrity(err) {
		t.Errorf("Expected IntegrityError with the wrong key, got %v", err)
	}
}

func TestTokenStore_Rotate(t *testing.T) {
	ts, _ := newTestTokenStore(t, filepath.Join(t.TempDir(), "sessions.db"))

	cred := testCredential()
	sessionID, err := ts.Put(cred, "access-old", "refresh-old", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	cred.AccessToken = "ya29.rotated"
	if err := ts.Rotate(sessionID, cred, "access-new", "refresh-new", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Rotate() error: %v", err)
	}

	session, err := ts.Get("access-new")
	if err != nil {
		t.Fatalf("Get() with new token error: %v", err)
	}
	if session.ID != sessionID {
		t.Errorf("Rotation changed the session identity: %q != %q", session.ID, sessionID)
	}
	if session.Credential.AccessToken != "ya29.rotated" {
		t.Error("Rotated credential not stored")
	}

	// The old access token no longer resolves
	if _, err := ts.Get("access-old"); !IsNotFound(err) {
		t.Errorf("Expected NotFoundError for the old token, got %v", err)
	}
}

func TestTokenStore_UpdateCredentialKeepsTokens(t *testing.T) {
	ts, _ := newTestTokenStore(t, filepath.Join(t.TempDir(), "sessions.db"))

	cred := testCredential()
	sessionID, err := ts.Put(cred, "access-upd", "refresh-upd", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	cred.AccessToken = "ya29.refreshed"
	if err := ts.UpdateCredential(sessionID, cred); err != nil {
		t.Fatalf("UpdateCredential() error: %v", err)
	}

	session, err := ts.Get("access-upd")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if session.Credential.AccessToken != "ya29.refreshed" {
		t.Error("Updated credential not visible through the original token")
	}
}
