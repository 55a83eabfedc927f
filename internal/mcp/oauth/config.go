package oauth

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds the OAuth handler configuration
type Config struct {
	// Resource is the externally visible base URL of the server (RFC 8707)
	Resource string

	// SupportedScopes are the Google API scopes the broker may request
	SupportedScopes []string

	// Google OAuth credentials and settings
	GoogleAuth GoogleAuthConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Security settings (secure by default)
	Security SecurityConfig

	// CleanupInterval is how often to cleanup expired flow records
	// Default: 1 minute
	CleanupInterval time.Duration

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// HTTPClient is a custom HTTP client for outbound OAuth requests.
	// If not provided, a client with a 30s timeout is used.
	HTTPClient *http.Client
}

// GoogleAuthConfig holds the Google side of the broker configuration
type GoogleAuthConfig struct {
	// ClientID is the Google OAuth Client ID
	ClientID string

	// ClientSecret is the Google OAuth Client Secret
	ClientSecret string

	// RedirectURL is the callback URL Google redirects to after consent.
	// Default: {Resource}/oauth/callback
	RedirectURL string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Rate is the number of requests per second allowed per IP (0 = no limit)
	Rate int

	// Burst is the maximum burst size allowed per IP
	Burst int

	// CleanupInterval is how often to cleanup inactive rate limiters
	// Default: 5 minutes
	CleanupInterval time.Duration

	// TrustProxy indicates whether to trust X-Forwarded-For and X-Real-IP headers.
	// Only set to true if the server is behind a trusted proxy.
	// Default: false
	TrustProxy bool
}

// SecurityConfig holds OAuth security settings (secure by default)
type SecurityConfig struct {
	// SessionSecret is the 32-byte key used to seal credential envelopes at
	// rest (AES-256-GCM). REQUIRED; the server refuses to start without it.
	SessionSecret []byte

	// AllowInsecureAuthWithoutState allows authorization requests without a
	// state parameter. Weakens CSRF protection; off by default.
	AllowInsecureAuthWithoutState bool

	// DisableRefreshTokenRotation disables rotation on the refresh_token
	// grant. Off by default per OAuth 2.1.
	DisableRefreshTokenRotation bool

	// AllowPublicClientRegistration allows unauthenticated dynamic client
	// registration. When false, registration requires RegistrationAccessToken.
	AllowPublicClientRegistration bool

	// RegistrationAccessToken is the token required for client registration
	// when AllowPublicClientRegistration is false.
	RegistrationAccessToken string

	// RefreshTokenTTL is the time-to-live for broker refresh tokens.
	// Default: 90 days.
	RefreshTokenTTL time.Duration

	// MaxClientsPerIP limits client registrations per IP. Default: 10.
	MaxClientsPerIP int
}
