package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/oauth2"

	"github.com/teemow/gcal-mcp-remote/internal/calendar"
	"github.com/teemow/gcal-mcp-remote/internal/google"
	"github.com/teemow/gcal-mcp-remote/internal/instrumentation"
	"github.com/teemow/gcal-mcp-remote/internal/mcp/oauth"
)

// OAuthHTTPServer wraps an MCP server with the OAuth 2.1 broker endpoints.
// The broker speaks OAuth 2.1 to MCP clients and is itself an OAuth client
// of Google; MCP clients never see Google credentials.
type OAuthHTTPServer struct {
	mcpServer        *mcpserver.MCPServer
	oauthHandler     *oauth.Handler
	httpServer       *http.Server
	serverType       string // "sse" or "streamable-http"
	disableStreaming bool
	metrics          *instrumentation.Metrics
	tlsCertFile      string
	tlsKeyFile       string
}

// NewOAuthHTTPServer creates a new OAuth-enabled HTTP server for MCP
func NewOAuthHTTPServer(mcpServer *mcpserver.MCPServer, serverType string, oauthHandler *oauth.Handler, disableStreaming bool) (*OAuthHTTPServer, error) {
	if oauthHandler == nil {
		return nil, fmt.Errorf("oauth handler is required")
	}

	return &OAuthHTTPServer{
		mcpServer:        mcpServer,
		oauthHandler:     oauthHandler,
		serverType:       serverType,
		disableStreaming: disableStreaming,
	}, nil
}

// SetMetrics sets the metrics recorder for HTTP instrumentation
func (s *OAuthHTTPServer) SetMetrics(m *instrumentation.Metrics) {
	s.metrics = m
}

// SetTLS configures the server to serve TLS with the given certificate and
// key files. When unset the server listens for plain HTTP, which OAuth 2.1
// only permits on loopback addresses.
func (s *OAuthHTTPServer) SetTLS(certFile, keyFile string) {
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
}

// Start starts the OAuth-enabled HTTP server
func (s *OAuthHTTPServer) Start(addr string) error {
	// OAuth 2.1 requires HTTPS; loopback addresses are exempt for development
	config := s.oauthHandler.GetConfig()
	if err := validateHTTPSRequirement(config.Resource); err != nil {
		return err
	}

	mux := http.NewServeMux()
	rateLimit := s.oauthHandler.RateLimitMiddleware

	mux.Handle("/health", http.HandlerFunc(handleHealth))

	// Discovery endpoints (RFC 9728 and RFC 8414)
	mux.Handle("/.well-known/oauth-protected-resource",
		rateLimit(http.HandlerFunc(s.oauthHandler.ServeProtectedResourceMetadata)))
	mux.Handle("/.well-known/oauth-authorization-server",
		rateLimit(http.HandlerFunc(s.oauthHandler.ServeAuthorizationServerMetadata)))

	// Broker OAuth endpoints
	mux.Handle("/oauth/register",
		rateLimit(s.oauthInstrumentationWrapper(http.HandlerFunc(s.oauthHandler.ServeDynamicClientRegistration))))
	mux.Handle("/oauth/authorize",
		rateLimit(s.oauthInstrumentationWrapper(http.HandlerFunc(s.oauthHandler.ServeAuthorization))))
	mux.Handle("/oauth/callback",
		rateLimit(s.oauthInstrumentationWrapper(http.HandlerFunc(s.oauthHandler.ServeGoogleCallback))))
	mux.Handle("/oauth/token",
		rateLimit(s.oauthInstrumentationWrapper(http.HandlerFunc(s.oauthHandler.ServeToken))))
	mux.Handle("/oauth/revoke",
		rateLimit(s.oauthInstrumentationWrapper(http.HandlerFunc(s.oauthHandler.ServeTokenRevocation))))

	// MCP endpoints, authenticated with broker tokens
	switch s.serverType {
	case "sse":
		sseServer := mcpserver.NewSSEServer(s.mcpServer,
			mcpserver.WithSSEEndpoint("/sse"),
			mcpserver.WithMessageEndpoint("/message"),
		)

		mux.Handle("/sse", rateLimit(
			s.oauthHandler.ValidateBrokerToken(s.scopedClientMiddleware(sseServer))))
		mux.Handle("/message", rateLimit(
			s.oauthHandler.ValidateBrokerToken(s.scopedClientMiddleware(sseServer))))

	case "streamable-http":
		opts := []mcpserver.StreamableHTTPOption{
			mcpserver.WithEndpointPath("/mcp"),
		}
		if s.disableStreaming {
			opts = append(opts, mcpserver.WithDisableStreaming(true))
		}
		httpServer := mcpserver.NewStreamableHTTPServer(s.mcpServer, opts...)

		mux.Handle("/mcp", rateLimit(
			s.oauthHandler.ValidateBrokerToken(s.scopedClientMiddleware(httpServer))))

	default:
		return fmt.Errorf("unsupported server type: %s", s.serverType)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.instrumentationMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		return s.httpServer.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *OAuthHTTPServer) Shutdown(ctx context.Context) error {
	s.oauthHandler.Close()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// GetOAuthHandler returns the OAuth handler for testing or direct access
func (s *OAuthHTTPServer) GetOAuthHandler() *oauth.Handler {
	return s.oauthHandler
}

// handleHealth reports liveness for load balancers and probes
func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}

// scopedClientMiddleware builds a Calendar client from the broker session
// resolved by ValidateBrokerToken and installs it in the request context.
// Tool handlers reach it with calendar.CurrentClient; outside this scope
// there is no client and no way to act on another user's credential.
func (s *OAuthHTTPServer) scopedClientMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := oauth.GetSessionFromContext(r.Context())
		if !ok || session == nil {
			http.Error(w, "no session", http.StatusUnauthorized)
			return
		}

		// Resolve has already refreshed a near-expiry Google token, so a
		// static source is sufficient for the lifetime of this request.
		ts := google.StaticTokenSource(&oauth2.Token{
			AccessToken: session.Credential.AccessToken,
			Expiry:      session.Credential.Expiry,
		})

		client, err := calendar.NewClientWithTokenSource(r.Context(), ts, session.Credential.UserEmail)
		if err != nil {
			http.Error(w, "failed to create Calendar client", http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r.WithContext(calendar.WithClient(r.Context(), client)))
	})
}

// responseWriter captures the status code for instrumentation
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// instrumentationMiddleware records HTTP request metrics for every request
func (s *OAuthHTTPServer) instrumentationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

// oauthInstrumentationWrapper records authentication outcomes on the OAuth
// endpoints. A 2xx or redirect counts as success, everything else as failure.
func (s *OAuthHTTPServer) oauthInstrumentationWrapper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		result := instrumentation.OAuthResultSuccess
		if rw.statusCode >= http.StatusBadRequest {
			result = instrumentation.OAuthResultFailure
		}
		s.metrics.RecordOAuthAuth(r.Context(), result)
	})
}

// validateHTTPSRequirement ensures OAuth 2.1 HTTPS compliance
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1)
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth 2.1 requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}
