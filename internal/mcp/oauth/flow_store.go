package oauth

import (
	"log/slog"
	"sync"
	"time"
)

// FlowStore manages in-flight authorization flows. States and codes are
// short-lived and single-use, so they live in memory; abandoned flows are
// garbage collected by TTL.
type FlowStore struct {
	states map[string]*AuthorizationState
	codes  map[string]*AuthorizationCode
	mu     sync.Mutex
	logger *slog.Logger
	stop   chan struct{}
}

// NewFlowStore creates a new flow store
func NewFlowStore(logger *slog.Logger) *FlowStore {
	if logger == nil {
		logger = slog.Default()
	}

	store := &FlowStore{
		states: make(map[string]*AuthorizationState),
		codes:  make(map[string]*AuthorizationCode),
		logger: logger,
		stop:   make(chan struct{}),
	}

	// Start cleanup goroutine
	go store.cleanup()

	return store
}

// Close stops the background cleanup goroutine.
func (s *FlowStore) Close() {
	close(s.stop)
}

// SaveAuthorizationState saves an authorization state
func (s *FlowStore) SaveAuthorizationState(state *AuthorizationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.GoogleState] = state
	s.logger.Debug("Saved authorization state",
		"google_state", hashForLogging(state.GoogleState),
		"client_id", state.ClientID,
		"expires_at", time.Unix(state.ExpiresAt, 0),
	)

	return nil
}

// ConsumeAuthorizationState retrieves and deletes an authorization state in a
// single locked operation. Concurrent callbacks racing on the same state see
// exactly one success; absent, already-consumed, and expired states all fail
// with the same InvalidStateError so a caller cannot tell which occurred.
func (s *FlowStore) ConsumeAuthorizationState(googleState string) (*AuthorizationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.states[googleState]
	if !exists {
		return nil, &InvalidStateError{}
	}

	// Consume on first touch, even if expired, so a retry cannot succeed
	delete(s.states, googleState)

	if time.Now().Unix() > state.ExpiresAt {
		return nil, &InvalidStateError{}
	}

	s.logger.Debug("Authorization state consumed",
		"google_state", hashForLogging(googleState),
		"client_id", state.ClientID,
	)

	return state, nil
}

// DeleteAuthorizationState deletes an authorization state
func (s *FlowStore) DeleteAuthorizationState(googleState string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, googleState)
}

// SaveAuthorizationCode saves an authorization code
func (s *FlowStore) SaveAuthorizationCode(code *AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes[code.Code] = code
	s.logger.Debug("Saved authorization code",
		"code", hashForLogging(code.Code),
		"client_id", code.ClientID,
		"user_email", hashForLogging(code.UserEmail),
		"expires_at", time.Unix(code.ExpiresAt, 0),
	)

	return nil
}

// ConsumeAuthorizationCode retrieves and immediately deletes an authorization
// code under one lock. A code can be redeemed at most once; a partially
// failed exchange cannot be retried with the same code.
func (s *FlowStore) ConsumeAuthorizationCode(code string) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	authCode, exists := s.codes[code]
	if !exists {
		return nil, &NotFoundError{Key: hashForLogging(code)}
	}

	// Deleted before the expiry check so replay is impossible either way
	delete(s.codes, code)

	if time.Now().Unix() > authCode.ExpiresAt {
		return nil, &NotFoundError{Key: hashForLogging(code)}
	}

	s.logger.Info("Authorization code consumed",
		"code", hashForLogging(code),
		"client_id", authCode.ClientID,
		"user_email", hashForLogging(authCode.UserEmail),
	)

	return authCode, nil
}

// cleanup periodically removes expired states and codes
func (s *FlowStore) cleanup() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stop:
			return
		}
	}
}

// cleanupExpired removes expired states and codes
func (s *FlowStore) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	statesDeleted := 0
	codesDeleted := 0

	for googleState, state := range s.states {
		if now > state.ExpiresAt {
			delete(s.states, googleState)
			statesDeleted++
		}
	}

	// Consumed codes are already gone; this only catches abandoned ones
	for code, authCode := range s.codes {
		if now > authCode.ExpiresAt {
			delete(s.codes, code)
			codesDeleted++
		}
	}

	if statesDeleted > 0 || codesDeleted > 0 {
		s.logger.Debug("Cleaned up OAuth flow data",
			"states_deleted", statesDeleted,
			"codes_deleted", codesDeleted,
		)
	}
}
