package oauth

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuthError represents an OAuth 2.0 error response
type OAuthError struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common OAuth errors as reusable instances
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *OAuthError {
		return NewOAuthError("invalid_request", desc, http.StatusBadRequest)
	}

	// ErrInvalidGrant indicates the authorization code or refresh token is invalid or expired
	ErrInvalidGrant = func(desc string) *OAuthError {
		return NewOAuthError("invalid_grant", desc, http.StatusBadRequest)
	}

	// ErrInvalidClient indicates client authentication failed
	ErrInvalidClient = func(desc string) *OAuthError {
		return NewOAuthError("invalid_client", desc, http.StatusUnauthorized)
	}

	// ErrInvalidScope indicates the requested scope is invalid or unsupported
	ErrInvalidScope = func(desc string) *OAuthError {
		return NewOAuthError("invalid_scope", desc, http.StatusBadRequest)
	}

	// ErrUnsupportedGrantType indicates the grant type is not supported
	ErrUnsupportedGrantType = func(desc string) *OAuthError {
		return NewOAuthError("unsupported_grant_type", desc, http.StatusBadRequest)
	}

	// ErrServerError indicates an internal server error occurred
	ErrServerError = func(desc string) *OAuthError {
		return NewOAuthError("server_error", desc, http.StatusInternalServerError)
	}
)

// InvalidRedirectError indicates a relying-party redirect URI that is not
// registered for the client or fails the security checks.
type InvalidRedirectError struct {
	RedirectURI string
	Reason      string
}

func (e *InvalidRedirectError) Error() string {
	return fmt.Sprintf("invalid redirect_uri %q: %s", e.RedirectURI, e.Reason)
}

// InvalidStateError indicates a state token that is absent, already consumed,
// or expired. The three cases are deliberately indistinguishable so a caller
// cannot probe which one occurred.
type InvalidStateError struct{}

func (e *InvalidStateError) Error() string {
	return "invalid or expired state"
}

// UpstreamExchangeError indicates Google rejected the authorization code
// during the code exchange. The upstream response body is never included.
type UpstreamExchangeError struct {
	Err error
}

func (e *UpstreamExchangeError) Error() string {
	return "failed to exchange authorization code with Google"
}

func (e *UpstreamExchangeError) Unwrap() error { return e.Err }

// InvalidTokenError indicates a bearer token that does not resolve to a live
// session. Store-level integrity and not-found failures both collapse into
// this error toward the relying party.
type InvalidTokenError struct{}

func (e *InvalidTokenError) Error() string {
	return "invalid or expired token"
}

// RevokedCredentialError indicates the session behind a token was revoked.
// Revocation is terminal; every later resolution fails with this error.
type RevokedCredentialError struct {
	SessionID string
}

func (e *RevokedCredentialError) Error() string {
	return "credential has been revoked"
}

// IntegrityError indicates a stored envelope or identifier failed seal
// verification. This is a store-level error and is never surfaced verbatim
// to the relying party.
type IntegrityError struct {
	Err error
}

func (e *IntegrityError) Error() string {
	return "seal verification failed"
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// NotFoundError indicates a store record that is absent or expired.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return "record not found"
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

// IsRevoked reports whether err is a RevokedCredentialError.
func IsRevoked(err error) bool {
	var target *RevokedCredentialError
	return errors.As(err, &target)
}

// IsIntegrity reports whether err is an IntegrityError.
func IsIntegrity(err error) bool {
	var target *IntegrityError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
