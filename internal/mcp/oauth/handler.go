package oauth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	oauth2google "golang.org/x/oauth2/google"

	"github.com/teemow/gcal-mcp-remote/internal/google"
	"github.com/teemow/gcal-mcp-remote/internal/storage"
)

// Handler implements the OAuth 2.1 endpoints of the broker. It acts as
// both an OAuth 2.1 Authorization Server (proxying to Google) and an
// OAuth 2.1 Resource Server (validating broker tokens on /mcp).
type Handler struct {
	config       *Config
	provider     *Provider
	tokenStore   *TokenStore
	clientStore  *ClientStore
	flowStore    *FlowStore
	rateLimiter  *RateLimiter
	googleConfig *oauth2.Config
	httpClient   *http.Client
	logger       *slog.Logger

	stopCleanup chan struct{}
}

// NewHandler creates the OAuth handler and its backing stores on top of
// the given database.
func NewHandler(config *Config, db *storage.Store) (*Handler, error) {
	if config.Resource == "" {
		return nil, fmt.Errorf("resource is required")
	}

	// Allow HTTP only for loopback addresses; everything else must be HTTPS.
	parsedURL, err := url.Parse(config.Resource)
	if err != nil {
		return nil, fmt.Errorf("invalid resource URL: %w", err)
	}
	if parsedURL.Scheme != "https" && !isLoopback(parsedURL.Hostname()) {
		return nil, fmt.Errorf("resource must use HTTPS in production (got %s://)", parsedURL.Scheme)
	}

	if config.GoogleAuth.ClientID == "" || config.GoogleAuth.ClientSecret == "" {
		return nil, fmt.Errorf("Google OAuth credentials are required")
	}

	if len(config.SupportedScopes) == 0 {
		config.SupportedScopes = google.DefaultOAuthScopes
	}

	if config.CleanupInterval == 0 {
		config.CleanupInterval = DefaultCleanupInterval
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if config.Security.RefreshTokenTTL == 0 {
		config.Security.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if config.Security.MaxClientsPerIP == 0 {
		config.Security.MaxClientsPerIP = DefaultMaxClientsPerIP
	}

	if config.Security.AllowInsecureAuthWithoutState {
		logger.Warn("SECURITY WARNING: state parameter is optional (CSRF protection weakened)",
			"recommendation", "Set Security.AllowInsecureAuthWithoutState=false for production")
	}
	if config.Security.DisableRefreshTokenRotation {
		logger.Warn("SECURITY WARNING: refresh token rotation is disabled",
			"recommendation", "Set Security.DisableRefreshTokenRotation=false for production")
	}
	if config.Security.AllowPublicClientRegistration {
		logger.Warn("SECURITY WARNING: public client registration is enabled (DoS risk)",
			"recommendation", "Set Security.AllowPublicClientRegistration=false and use RegistrationAccessToken")
	}

	sealer, err := NewSealer(config.Security.SessionSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid session secret: %w", err)
	}

	var rateLimiter *RateLimiter
	if config.RateLimit.Rate > 0 {
		burst := config.RateLimit.Burst
		if burst == 0 {
			burst = config.RateLimit.Rate * 2
		}
		cleanupInterval := config.RateLimit.CleanupInterval
		if cleanupInterval == 0 {
			cleanupInterval = DefaultRateLimitCleanupInterval
		}
		rateLimiter = NewRateLimiter(config.RateLimit.Rate, burst, config.RateLimit.TrustProxy, cleanupInterval, logger)
		logger.Info("IP-based rate limiting enabled",
			"rate", config.RateLimit.Rate,
			"burst", burst)
	}

	redirectURL := config.GoogleAuth.RedirectURL
	if redirectURL == "" {
		redirectURL = config.Resource + "/oauth/callback"
	}

	googleConfig := &oauth2.Config{
		ClientID:     config.GoogleAuth.ClientID,
		ClientSecret: config.GoogleAuth.ClientSecret,
		Endpoint:     oauth2google.Endpoint,
		Scopes:       config.SupportedScopes,
		RedirectURL:  redirectURL,
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	tokenStore := NewTokenStore(db, sealer, logger)
	clientStore := NewClientStore(logger)
	flowStore := NewFlowStore(logger)

	provider := NewProvider(config, googleConfig, flowStore, tokenStore, clientStore, httpClient, logger)

	stopCleanup := make(chan struct{})
	tokenStore.StartCleanup(config.CleanupInterval, stopCleanup)

	logger.Info("OAuth broker enabled", "redirect_url", redirectURL)

	return &Handler{
		config:       config,
		provider:     provider,
		tokenStore:   tokenStore,
		clientStore:  clientStore,
		flowStore:    flowStore,
		rateLimiter:  rateLimiter,
		googleConfig: googleConfig,
		httpClient:   httpClient,
		logger:       logger,
		stopCleanup:  stopCleanup,
	}, nil
}

// Close stops the background cleanup goroutines.
func (h *Handler) Close() {
	close(h.stopCleanup)
	h.flowStore.Close()
	if h.rateLimiter != nil {
		h.rateLimiter.Close()
	}
}

// GetProvider returns the broker core (for middleware and testing).
func (h *Handler) GetProvider() *Provider {
	return h.provider
}

// GetTokenStore returns the underlying token store.
func (h *Handler) GetTokenStore() *TokenStore {
	return h.tokenStore
}

// GetConfig returns the OAuth configuration.
func (h *Handler) GetConfig() *Config {
	return h.config
}

// GetRateLimiter returns the IP rate limiter, or nil if disabled.
func (h *Handler) GetRateLimiter() *RateLimiter {
	return h.rateLimiter
}

// ServeProtectedResourceMetadata serves the OAuth 2.0 Protected Resource
// Metadata (RFC 9728). MCP clients fetch this after a 401 to discover the
// authorization server.
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The protected resource is the MCP endpoint, not the bare base URL.
	metadata := ProtectedResourceMetadata{
		Resource: h.config.Resource + "/mcp",
		AuthorizationServers: []string{
			h.config.Resource,
		},
		BearerMethodsSupported: []string{
			"header",
		},
		ScopesSupported: h.config.SupportedScopes,
	}

	h.setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(metadata); err != nil {
		h.logger.Error("Failed to encode metadata", "error", err)
	}
}

// setSecurityHeaders sets security headers on HTTP responses
func (h *Handler) setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-XSS-Protection", "1; mode=block")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	w.Header().Set("Referrer-Policy", "no-referrer")

	if h.config.Resource != "" {
		parsedURL, err := url.Parse(h.config.Resource)
		if err == nil && parsedURL.Scheme == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
	}
}

// writeError is a helper to write OAuth error responses
func (h *Handler) writeError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	h.logger.Debug("OAuth error", "code", errorCode, "description", description, "status", statusCode)
	h.setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:            errorCode,
		ErrorDescription: description,
	})
}

// writeCallbackError writes the structured error body used by the Google
// callback endpoint.
func (h *Handler) writeCallbackError(w http.ResponseWriter, category, detail string, statusCode int) {
	h.setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(CallbackError{
		Error:  category,
		Detail: detail,
	})
}
