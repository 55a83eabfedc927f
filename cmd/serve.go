package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/gcal-mcp-remote/internal/instrumentation"
	"github.com/teemow/gcal-mcp-remote/internal/logging"
	"github.com/teemow/gcal-mcp-remote/internal/mcp/oauth"
	"github.com/teemow/gcal-mcp-remote/internal/resources"
	"github.com/teemow/gcal-mcp-remote/internal/server"
	"github.com/teemow/gcal-mcp-remote/internal/storage"
	"github.com/teemow/gcal-mcp-remote/internal/tools/calendar_tools"
)

// OAuthSecurityConfig holds the security settings for the OAuth broker
type OAuthSecurityConfig struct {
	AllowPublicClientRegistration bool
	RegistrationAccessToken       string
	AllowInsecureAuthWithoutState bool
	DisableRefreshTokenRotation   bool
	MaxClientsPerIP               int
	SessionSecret                 []byte
	TLSCertFile                   string
	TLSKeyFile                    string
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

func newServeCmd() *cobra.Command {
	var (
		debugMode          bool
		transport          string
		host               string
		port               string
		yolo               bool
		googleClientID     string
		googleClientSecret string
		disableStreaming   bool
		baseURL            string
		databaseDSN        string
		sessionSecret      string
		// OAuth security options
		allowPublicClientRegistration bool
		registrationAccessToken       string
		allowInsecureAuthWithoutState bool
		disableRefreshTokenRotation   bool
		maxClientsPerIP               int
		// TLS/HTTPS support
		tlsCertFile string
		tlsKeyFile  string
		// Metrics server configuration
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the remote MCP server",
		Long: `Start the Model Context Protocol (MCP) server that brokers OAuth between
MCP clients and Google Calendar.

The server speaks OAuth 2.1 to MCP clients and is itself an OAuth client of
Google. Google tokens never leave the server; clients only ever hold broker
tokens.

Supports two transport types:
  - streamable-http: Streamable HTTP transport at /mcp (default)
  - sse: Server-Sent Events transport at /sse

Safety Mode:
  By default, the server operates in read-only mode, providing only safe
  operations. Use --yolo to enable write operations (event creation,
  updates, deletion).

OAuth Configuration:
  Google credentials (required):
    --google-client-id and --google-client-secret flags
    OR GCAL_OAUTH_CLIENT_ID and GCAL_OAUTH_CLIENT_SECRET env vars

  Session secret (required):
    --session-secret flag OR SESSION_SECRET env var
    Base64-encoded 32-byte key used to seal Google credentials at rest.

  Base URL (required for deployed instances):
    --base-url https://your-domain.com OR BASE_URL env var
    Auto-detected for loopback addresses (development only)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load credentials and secrets from environment if not set via flags
			if googleClientID == "" {
				googleClientID = os.Getenv("GCAL_OAUTH_CLIENT_ID")
			}
			if googleClientSecret == "" {
				googleClientSecret = os.Getenv("GCAL_OAUTH_CLIENT_SECRET")
			}
			if sessionSecret == "" {
				sessionSecret = os.Getenv("SESSION_SECRET")
			}
			if baseURL == "" {
				baseURL = os.Getenv("BASE_URL")
			}
			if databaseDSN == "" {
				databaseDSN = os.Getenv("DATABASE_DSN")
			}
			if host == "" || host == "127.0.0.1" {
				if envHost := os.Getenv("HOST"); envHost != "" {
					host = envHost
				}
			}
			if port == "" || port == "8001" {
				if envPort := os.Getenv("PORT"); envPort != "" {
					port = envPort
				}
			}

			// Parse session secret from base64 if provided
			var secretBytes []byte
			if sessionSecret != "" {
				decoded, err := base64.StdEncoding.DecodeString(sessionSecret)
				if err != nil {
					return fmt.Errorf("invalid session secret (must be base64 encoded): %w", err)
				}
				if len(decoded) != 32 {
					return fmt.Errorf("session secret must be exactly 32 bytes (got %d bytes)", len(decoded))
				}
				secretBytes = decoded
			}

			// Load security settings from environment if not set via flags
			if !allowPublicClientRegistration && os.Getenv("GCAL_OAUTH_ALLOW_PUBLIC_REGISTRATION") == "true" {
				allowPublicClientRegistration = true
			}
			if registrationAccessToken == "" {
				registrationAccessToken = os.Getenv("GCAL_OAUTH_REGISTRATION_TOKEN")
			}
			if !allowInsecureAuthWithoutState && os.Getenv("GCAL_OAUTH_ALLOW_NO_STATE") == "true" {
				allowInsecureAuthWithoutState = true
			}

			// Load TLS paths from environment if not provided via flags
			if tlsCertFile == "" {
				tlsCertFile = os.Getenv("TLS_CERT_FILE")
			}
			if tlsKeyFile == "" {
				tlsKeyFile = os.Getenv("TLS_KEY_FILE")
			}

			securityConfig := OAuthSecurityConfig{
				AllowPublicClientRegistration: allowPublicClientRegistration,
				RegistrationAccessToken:       registrationAccessToken,
				AllowInsecureAuthWithoutState: allowInsecureAuthWithoutState,
				DisableRefreshTokenRotation:   disableRefreshTokenRotation,
				MaxClientsPerIP:               maxClientsPerIP,
				SessionSecret:                 secretBytes,
				TLSCertFile:                   tlsCertFile,
				TLSKeyFile:                    tlsKeyFile,
			}

			metricsConfig := MetricsConfig{
				Enabled: resolveMetricsEnabled(metricsEnabled, cmd.Flags().Changed("metrics-enabled"), os.Getenv("METRICS_ENABLED")),
				Addr:    metricsAddr,
			}

			addr := net.JoinHostPort(host, port)
			return runServe(transport, debugMode, addr, yolo, googleClientID, googleClientSecret, disableStreaming, baseURL, databaseDSN, securityConfig, metricsConfig)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&transport, "transport", "streamable-http", "Transport type: streamable-http or sse")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Listen host. Can also use HOST env var.")
	cmd.Flags().StringVar(&port, "port", "8001", "Listen port. Can also use PORT env var.")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations (event creation, updates, deletion). Default is read-only mode.")
	cmd.Flags().StringVar(&googleClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GCAL_OAUTH_CLIENT_ID env var.")
	cmd.Flags().StringVar(&googleClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GCAL_OAUTH_CLIENT_SECRET env var.")
	cmd.Flags().BoolVar(&disableStreaming, "disable-streaming", false, "Disable SSE streaming on the streamable HTTP transport (plain request/response only)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL of this server, e.g. https://gcal.example.com. Can also use BASE_URL env var. Auto-detected for loopback addresses.")
	cmd.Flags().StringVar(&databaseDSN, "database-dsn", "", "Session database DSN. Empty selects a local SQLite file; postgres:// selects PostgreSQL. Can also use DATABASE_DSN env var.")
	cmd.Flags().StringVar(&sessionSecret, "session-secret", "", "Base64-encoded 32-byte key for sealing Google credentials at rest. Can also use SESSION_SECRET env var.")

	// OAuth security flags
	cmd.Flags().BoolVar(&allowPublicClientRegistration, "oauth-allow-public-registration", false, "Allow dynamic client registration without authentication. Can also use GCAL_OAUTH_ALLOW_PUBLIC_REGISTRATION env var.")
	cmd.Flags().StringVar(&registrationAccessToken, "oauth-registration-token", "", "Bearer token required for dynamic client registration. Can also use GCAL_OAUTH_REGISTRATION_TOKEN env var.")
	cmd.Flags().BoolVar(&allowInsecureAuthWithoutState, "oauth-allow-no-state", false, "Allow authorization requests without a state parameter (weakens CSRF protection). Can also use GCAL_OAUTH_ALLOW_NO_STATE env var.")
	cmd.Flags().BoolVar(&disableRefreshTokenRotation, "oauth-disable-refresh-rotation", false, "Disable refresh token rotation (not recommended)")
	cmd.Flags().IntVar(&maxClientsPerIP, "oauth-max-clients-per-ip", 0, "Maximum registered OAuth clients per IP address (0 uses the built-in default)")

	// TLS flags
	cmd.Flags().StringVar(&tlsCertFile, "tls-cert-file", "", "Path to TLS certificate file. Can also use TLS_CERT_FILE env var.")
	cmd.Flags().StringVar(&tlsKeyFile, "tls-key-file", "", "Path to TLS key file. Can also use TLS_KEY_FILE env var.")

	// Metrics server flags
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(transport string, debugMode bool, addr string, yolo bool, googleClientID, googleClientSecret string, disableStreaming bool, baseURL, databaseDSN string, securityConfig OAuthSecurityConfig, metricsConfig MetricsConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Configure structured logging
	logLevel := slog.LevelInfo
	if debugMode {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Load metrics address from environment if not set via flags
	if metricsConfig.Addr == "" || metricsConfig.Addr == ":9090" {
		if envAddr := os.Getenv("METRICS_ADDR"); envAddr != "" {
			metricsConfig.Addr = envAddr
		}
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during instrumentation shutdown: %v", err)
		}
	}()

	// Create server context
	serverContext, err := server.NewServerContext(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	if provider.Enabled() {
		serverContext.SetMetrics(provider.Metrics())
		serverContext.SetAuditLogger(instrumentation.NewAuditLoggerWithConfig(nil, instrConfig.AuditLogging))
	}
	healthChecker := server.NewHealthChecker(serverContext)

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if metricsConfig.Enabled && provider.Enabled() {
		var err error
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsConfig.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
			HealthChecker:           healthChecker,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		// Wait for metrics server to be ready or fail
		select {
		case <-metricsReady:
			log.Printf("Metrics server started on %s", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}
	}

	// Validate Google OAuth credentials early so misconfiguration fails fast
	if googleClientID == "" || googleClientSecret == "" {
		return fmt.Errorf("Google OAuth credentials are required (set GCAL_OAUTH_CLIENT_ID and GCAL_OAUTH_CLIENT_SECRET or use the flags)")
	}
	if len(securityConfig.SessionSecret) == 0 {
		return fmt.Errorf("session secret is required (set SESSION_SECRET or use --session-secret)")
	}

	// Determine the public base URL. Loopback listeners can fall back to a
	// plain-HTTP URL for development; everything else must be configured.
	if baseURL == "" {
		detected, err := detectBaseURL(addr, securityConfig.TLSCertFile != "")
		if err != nil {
			return err
		}
		baseURL = detected
		log.Printf("Base URL auto-detected as %s (use --base-url for deployed instances)", baseURL)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	defer func() {
		healthChecker.SetReady(false)
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error during metrics server shutdown: %v", err)
			}
		}
		if err := serverContext.Shutdown(); err != nil {
			log.Printf("Error during server context shutdown: %v", err)
		}
	}()

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("gcal-mcp-remote", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)

	// readOnly is the inverse of yolo
	readOnly := !yolo
	if readOnly {
		log.Println("Starting server in READ-ONLY mode (use --yolo to enable write operations)")
	} else {
		log.Println("Starting server with WRITE operations enabled (--yolo flag is set)")
	}

	if err := calendar_tools.RegisterCalendarTools(mcpSrv, serverContext, readOnly); err != nil {
		return fmt.Errorf("failed to register Calendar tools: %w", err)
	}

	if err := resources.RegisterUserResources(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register user resources: %w", err)
	}

	switch transport {
	case "streamable-http", "sse":
		return runBrokerHTTPServer(shutdownCtx, mcpSrv, transport, addr, baseURL, databaseDSN, debugMode, googleClientID, googleClientSecret, disableStreaming, securityConfig, provider, healthChecker)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: streamable-http, sse)", transport)
	}
}

// runBrokerHTTPServer wires the OAuth broker around the MCP server and runs
// it until the shutdown context fires.
func runBrokerHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, transport, addr, baseURL, databaseDSN string, debugMode bool, googleClientID, googleClientSecret string, disableStreaming bool, securityConfig OAuthSecurityConfig, provider *instrumentation.Provider, healthChecker *server.HealthChecker) error {
	db, err := storage.New(databaseDSN)
	if err != nil {
		return fmt.Errorf("failed to open session database: %w", err)
	}
	if healthChecker != nil {
		healthChecker.AddCheck("storage", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return db.Ping(pingCtx)
		})
	}

	oauthConfig := &oauth.Config{
		Resource:        baseURL,
		SupportedScopes: parseCommaSeparatedList(os.Getenv("GCAL_OAUTH_SCOPES")),
		GoogleAuth: oauth.GoogleAuthConfig{
			ClientID:     googleClientID,
			ClientSecret: googleClientSecret,
		},
		RateLimit: oauth.RateLimitConfig{
			Rate:  10,
			Burst: 20,
		},
		Logger: logging.WithService(slog.Default(), "oauth"),
		Security: oauth.SecurityConfig{
			SessionSecret:                 securityConfig.SessionSecret,
			AllowInsecureAuthWithoutState: securityConfig.AllowInsecureAuthWithoutState,
			DisableRefreshTokenRotation:   securityConfig.DisableRefreshTokenRotation,
			AllowPublicClientRegistration: securityConfig.AllowPublicClientRegistration,
			RegistrationAccessToken:       securityConfig.RegistrationAccessToken,
			MaxClientsPerIP:               securityConfig.MaxClientsPerIP,
		},
	}

	oauthHandler, err := oauth.NewHandler(oauthConfig, db)
	if err != nil {
		return fmt.Errorf("failed to create OAuth handler: %w", err)
	}

	oauthServer, err := server.NewOAuthHTTPServer(mcpSrv, transport, oauthHandler, disableStreaming)
	if err != nil {
		return fmt.Errorf("failed to create OAuth HTTP server: %w", err)
	}
	if provider.Enabled() {
		oauthServer.SetMetrics(provider.Metrics())
	}
	if securityConfig.TLSCertFile != "" && securityConfig.TLSKeyFile != "" {
		oauthServer.SetTLS(securityConfig.TLSCertFile, securityConfig.TLSKeyFile)
	}

	log.Printf("Starting gcal-mcp-remote MCP server with %s transport on %s", transport, addr)
	if debugMode {
		log.Printf("OAuth broker resource: %s", baseURL)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := oauthServer.Start(addr); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Println("Shutting down server...")
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := oauthServer.Shutdown(shutdownTimeout); err != nil {
			return fmt.Errorf("error during server shutdown: %w", err)
		}
		return nil
	}
}

// detectBaseURL derives a development base URL from the listen address.
// Only loopback hosts qualify; deployed instances must set --base-url.
func detectBaseURL(addr string, tlsEnabled bool) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if host == "" {
		host = "localhost"
	}
	ip := net.ParseIP(host)
	isLoopback := host == "localhost" || (ip != nil && ip.IsLoopback())
	if !isLoopback && !tlsEnabled {
		return "", fmt.Errorf("base URL is required for non-loopback listeners (set BASE_URL or --base-url)")
	}
	scheme := "http"
	if tlsEnabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%s", scheme, host, port), nil
}

// resolveMetricsEnabled applies the METRICS_ENABLED environment fallback.
// The flag defaults to true, so the environment value is only consulted when
// the flag was not set explicitly; METRICS_ENABLED=false then disables the
// metrics server.
func resolveMetricsEnabled(flagValue, flagChanged bool, envValue string) bool {
	if flagChanged || envValue == "" {
		return flagValue
	}
	if v, err := strconv.ParseBool(envValue); err == nil {
		return v
	}
	return flagValue
}

// parseCommaSeparatedList splits a comma-separated string into a slice,
// trimming whitespace and dropping empty entries.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
