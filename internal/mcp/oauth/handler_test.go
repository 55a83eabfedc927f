package oauth

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/teemow/gcal-mcp-remote/internal/storage"
)

// roundTripFunc lets a test stand in for Google's token, userinfo and
// revocation endpoints without network access.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// fakeGoogleTransport answers the Google endpoints the broker talks to.
func fakeGoogleTransport() http.RoundTripper {
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		switch {
		case r.URL.Host == "oauth2.googleapis.com" && r.URL.Path == "/token":
			return jsonResponse(http.StatusOK,
				`{"access_token":"ya29.fake","token_type":"Bearer","refresh_token":"1//fake-refresh","expires_in":3600}`), nil
		case r.URL.Host == "oauth2.googleapis.com" && r.URL.Path == "/revoke":
			return jsonResponse(http.StatusOK, `{}`), nil
		case r.URL.Host == "www.googleapis.com" && r.URL.Path == "/oauth2/v2/userinfo":
			return jsonResponse(http.StatusOK,
				`{"sub":"123","email":"user@example.com","email_verified":true,"name":"Test User"}`), nil
		default:
			return jsonResponse(http.StatusNotFound, `{"error":"unexpected request"}`), nil
		}
	})
}

func newTestHandler(t *testing.T, mutate func(*Config)) *Handler {
	t.Helper()

	db, err := storage.New(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("storage.New() error: %v", err)
	}

	cfg := &Config{
		Resource: "http://127.0.0.1:8001",
		GoogleAuth: GoogleAuthConfig{
			ClientID:     "google-client-id",
			ClientSecret: "google-client-secret",
		},
		Security: SecurityConfig{
			SessionSecret: testSealingKey(t),
		},
		HTTPClient: &http.Client{Transport: fakeGoogleTransport()},
	}
	if mutate != nil {
		mutate(cfg)
	}

	h, err := NewHandler(cfg, db)
	if err != nil {
		t.Fatalf("NewHandler() error: %v", err)
	}
	t.Cleanup(h.Close)
	return h
}

func TestNewHandler_Validation(t *testing.T) {
	db, err := storage.New(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("storage.New() error: %v", err)
	}

	key := make([]byte, SealingKeyLength)

	tests := []struct {
		name string
		cfg  *Config
	}{
		{"missing resource", &Config{
			GoogleAuth: GoogleAuthConfig{ClientID: "id", ClientSecret: "secret"},
			Security:   SecurityConfig{SessionSecret: key},
		}},
		{"non-loopback http resource", &Config{
			Resource:   "http://broker.example.com",
			GoogleAuth: GoogleAuthConfig{ClientID: "id", ClientSecret: "secret"},
			Security:   SecurityConfig{SessionSecret: key},
		}},
		{"missing google credentials", &Config{
			Resource: "http://127.0.0.1:8001",
			Security: SecurityConfig{SessionSecret: key},
		}},
		{"missing session secret", &Config{
			Resource:   "http://127.0.0.1:8001",
			GoogleAuth: GoogleAuthConfig{ClientID: "id", ClientSecret: "secret"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHandler(tt.cfg, db); err == nil {
				t.Error("NewHandler() accepted an invalid config")
			}
		})
	}
}

func TestNewHandler_AcceptsHTTPSResource(t *testing.T) {
	db, err := storage.New(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("storage.New() error: %v", err)
	}

	h, err := NewHandler(&Config{
		Resource:   "https://broker.example.com",
		GoogleAuth: GoogleAuthConfig{ClientID: "id", ClientSecret: "secret"},
		Security:   SecurityConfig{SessionSecret: make([]byte, SealingKeyLength)},
	}, db)
	if err != nil {
		t.Fatalf("NewHandler() error: %v", err)
	}
	h.Close()
}

func TestServeProtectedResourceMetadata(t *testing.T) {
	h := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil)
	rec := httptest.NewRecorder()
	h.ServeProtectedResourceMetadata(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}

	var metadata ProtectedResourceMetadata
	if err := json.NewDecoder(rec.Body).Decode(&metadata); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}

	// The protected resource is the MCP endpoint, not the bare base URL
	if metadata.Resource != "http://127.0.0.1:8001/mcp" {
		t.Errorf("Resource = %q, want the /mcp endpoint", metadata.Resource)
	}
	if len(metadata.AuthorizationServers) != 1 || metadata.AuthorizationServers[0] != "http://127.0.0.1:8001" {
		t.Errorf("AuthorizationServers = %v", metadata.AuthorizationServers)
	}
}

func TestServeAuthorizationServerMetadata(t *testing.T) {
	h := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil)
	rec := httptest.NewRecorder()
	h.ServeAuthorizationServerMetadata(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}

	var metadata AuthorizationServerMetadata
	if err := json.NewDecoder(rec.Body).Decode(&metadata); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}

	if metadata.Issuer != "http://127.0.0.1:8001" {
		t.Errorf("Issuer = %q", metadata.Issuer)
	}
	if metadata.AuthorizationEndpoint != "http://127.0.0.1:8001/oauth/authorize" {
		t.Errorf("AuthorizationEndpoint = %q", metadata.AuthorizationEndpoint)
	}
	if metadata.TokenEndpoint != "http://127.0.0.1:8001/oauth/token" {
		t.Errorf("TokenEndpoint = %q", metadata.TokenEndpoint)
	}
	if len(metadata.CodeChallengeMethodsSupported) != 1 || metadata.CodeChallengeMethodsSupported[0] != "S256" {
		t.Errorf("CodeChallengeMethodsSupported = %v, want [S256]", metadata.CodeChallengeMethodsSupported)
	}
}

func TestServeDynamicClientRegistration_RequiresAuth(t *testing.T) {
	h := newTestHandler(t, func(cfg *Config) {
		cfg.Security.RegistrationAccessToken = "registration-secret"
	})

	body := `{"redirect_uris":["http://127.0.0.1:5000/callback"]}`

	// No Authorization header
	req := httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeDynamicClientRegistration(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Status without auth = %d, want 401", rec.Code)
	}

	// Wrong token
	req = httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeDynamicClientRegistration(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Status with wrong token = %d, want 401", rec.Code)
	}

	// Correct token
	req = httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer registration-secret")
	rec = httptest.NewRecorder()
	h.ServeDynamicClientRegistration(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Status with correct token = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var resp ClientRegistrationResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ClientID == "" || resp.ClientSecret == "" {
		t.Error("Expected generated client credentials")
	}
}

func TestServeDynamicClientRegistration_Public(t *testing.T) {
	h := newTestHandler(t, func(cfg *Config) {
		cfg.Security.AllowPublicClientRegistration = true
	})

	req := httptest.NewRequest(http.MethodPost, "/oauth/register",
		strings.NewReader(`{"redirect_uris":["http://127.0.0.1:5000/callback"],"token_endpoint_auth_method":"none"}`))
	rec := httptest.NewRecorder()
	h.ServeDynamicClientRegistration(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

func TestServeDynamicClientRegistration_RejectsBadRedirects(t *testing.T) {
	h := newTestHandler(t, func(cfg *Config) {
		cfg.Security.AllowPublicClientRegistration = true
	})

	tests := []struct {
		name string
		body string
	}{
		{"no redirect uris", `{"redirect_uris":[]}`},
		{"javascript scheme", `{"redirect_uris":["javascript:alert(1)"]}`},
		{"custom scheme", `{"redirect_uris":["myapp://callback"]}`},
		{"fragment", `{"redirect_uris":["http://127.0.0.1:5000/cb#frag"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/oauth/register", bytes.NewReader([]byte(tt.body)))
			rec := httptest.NewRecorder()
			h.ServeDynamicClientRegistration(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil)
	rec := httptest.NewRecorder()
	h.ServeProtectedResourceMetadata(rec, req)

	for header, want := range map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}

	// Loopback HTTP resource must not advertise HSTS
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("Unexpected Strict-Transport-Security on http resource: %q", got)
	}
}
