package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ServeAuthorizationServerMetadata serves the OAuth 2.0 Authorization Server
// Metadata (RFC 8414). This tells MCP clients where the broker's endpoints live.
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	metadata := AuthorizationServerMetadata{
		Issuer:                            h.config.Resource,
		AuthorizationEndpoint:             h.config.Resource + "/oauth/authorize",
		TokenEndpoint:                     h.config.Resource + "/oauth/token",
		RevocationEndpoint:                h.config.Resource + "/oauth/revoke",
		RegistrationEndpoint:              h.config.Resource + "/oauth/register",
		ScopesSupported:                   h.config.SupportedScopes,
		ResponseTypesSupported:            DefaultResponseTypes,
		GrantTypesSupported:               DefaultGrantTypes,
		TokenEndpointAuthMethodsSupported: SupportedTokenAuthMethods,
		CodeChallengeMethodsSupported:     SupportedCodeChallengeMethods,
	}

	h.setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(metadata); err != nil {
		h.logger.Error("Failed to encode authorization server metadata", "error", err)
	}
}

// ServeDynamicClientRegistration handles Dynamic Client Registration (RFC 7591)
func (h *Handler) ServeDynamicClientRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Registration requires authentication unless explicitly opened up.
	if !h.config.Security.AllowPublicClientRegistration {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			h.logger.Warn("Client registration rejected: missing authorization",
				"client_ip", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", "Bearer")
			h.writeError(w, "invalid_token", "Registration access token required", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			h.writeError(w, "invalid_token", "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if h.config.Security.RegistrationAccessToken == "" {
			h.logger.Error("RegistrationAccessToken not configured but AllowPublicClientRegistration=false")
			h.writeError(w, "server_error", "Server configuration error: registration token not configured", http.StatusInternalServerError)
			return
		}

		if parts[1] != h.config.Security.RegistrationAccessToken {
			h.logger.Warn("Client registration rejected: invalid registration token",
				"client_ip", r.RemoteAddr)
			h.writeError(w, "invalid_token", "Invalid registration access token", http.StatusUnauthorized)
			return
		}
	}

	var req ClientRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid_request", "Failed to parse registration request", http.StatusBadRequest)
		return
	}

	if len(req.RedirectURIs) == 0 {
		h.writeError(w, "invalid_redirect_uri", "At least one redirect_uri is required", http.StatusBadRequest)
		return
	}

	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURI(uri, h.config.Resource); err != nil {
			h.writeError(w, "invalid_redirect_uri", err.Error(), http.StatusBadRequest)
			return
		}
	}

	clientIP := getClientIP(r, h.config.RateLimit.TrustProxy)
	if err := h.clientStore.CheckIPLimit(clientIP, h.config.Security.MaxClientsPerIP); err != nil {
		h.logger.Warn("Client registration limit exceeded",
			"client_ip", clientIP,
			"limit", h.config.Security.MaxClientsPerIP)
		h.writeError(w, "invalid_request",
			fmt.Sprintf("Client registration limit exceeded for your IP address (%d max)", h.config.Security.MaxClientsPerIP),
			http.StatusTooManyRequests)
		return
	}

	resp, err := h.clientStore.RegisterClient(&req, clientIP)
	if err != nil {
		h.logger.Error("Failed to register client", "error", err)
		h.writeError(w, "server_error", "Failed to register client", http.StatusInternalServerError)
		return
	}

	h.setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// ServeAuthorization handles the broker authorization endpoint. It validates
// the relying party's request and redirects the user agent to Google.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	req := &AuthorizationRequest{
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		State:               query.Get("state"),
		Scope:               query.Get("scope"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
	}

	if req.ClientID == "" {
		h.writeError(w, "invalid_request", "client_id is required", http.StatusBadRequest)
		return
	}

	if req.RedirectURI == "" {
		h.writeError(w, "invalid_redirect", "redirect_uri is required", http.StatusBadRequest)
		return
	}

	// OAuth 2.1: state is required for CSRF protection unless explicitly waived
	if req.State == "" && !h.config.Security.AllowInsecureAuthWithoutState {
		h.logger.Warn("Authorization request rejected: missing state parameter",
			"client_id", req.ClientID,
			"redirect_uri", req.RedirectURI)
		h.writeError(w, "invalid_request", "state parameter is required for CSRF protection", http.StatusBadRequest)
		return
	}

	if req.Scope != "" {
		if err := h.validateScopes(req.Scope); err != nil {
			h.writeError(w, "invalid_scope", err.Error(), http.StatusBadRequest)
			return
		}
	}

	client, err := h.clientStore.GetClient(req.ClientID)
	if err != nil {
		h.logger.Warn("Invalid client_id", "client_id", req.ClientID, "error", err)
		h.writeError(w, "invalid_client", "Invalid client_id", http.StatusUnauthorized)
		return
	}

	// OAuth 2.1 requires PKCE for public clients
	if req.CodeChallenge == "" && client.TokenEndpointAuthMethod == "none" {
		h.writeError(w, "invalid_request", "PKCE is required for public clients", http.StatusBadRequest)
		return
	}

	if req.CodeChallenge != "" {
		if req.CodeChallengeMethod == "" {
			req.CodeChallengeMethod = "S256"
		}
		if req.CodeChallengeMethod != "S256" {
			h.writeError(w, "invalid_request", "Only the S256 code_challenge_method is supported", http.StatusBadRequest)
			return
		}
	}

	googleAuthURL, err := h.provider.BeginAuthorization(req)
	if err != nil {
		var redirectErr *InvalidRedirectError
		if errors.As(err, &redirectErr) {
			h.logger.Warn("Invalid redirect_uri",
				"client_id", req.ClientID,
				"redirect_uri", redirectErr.RedirectURI,
				"reason", redirectErr.Reason,
			)
			h.writeError(w, "invalid_redirect", redirectErr.Reason, http.StatusBadRequest)
			return
		}
		h.logger.Error("Failed to begin authorization", "error", err)
		h.writeError(w, "server_error", "Failed to begin authorization", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, googleAuthURL, http.StatusFound)
}

// ServeGoogleCallback handles the redirect back from Google. Every failure
// path returns a structured JSON body with a machine-readable category.
func (h *Handler) ServeGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	googleState := query.Get("state")
	code := query.Get("code")
	errorParam := query.Get("error")

	if errorParam != "" {
		errorDesc := query.Get("error_description")
		h.logger.Warn("Google OAuth error",
			"error", errorParam,
			"description", errorDesc,
		)
		detail := errorParam
		if errorDesc != "" {
			detail = fmt.Sprintf("%s: %s", errorParam, errorDesc)
		}
		h.writeCallbackError(w, CallbackErrGoogleOAuth, detail, http.StatusBadRequest)
		return
	}

	if code == "" || googleState == "" {
		h.writeCallbackError(w, CallbackErrMissing, "code and state are required", http.StatusBadRequest)
		return
	}

	redirectURL, err := h.provider.ExchangeGoogleCode(r.Context(), googleState, code)
	if err != nil {
		switch {
		case IsInvalidState(err):
			h.logger.Warn("Callback with invalid or expired state",
				"google_state", hashForLogging(googleState))
			h.writeCallbackError(w, CallbackErrFailed, "invalid or expired state", http.StatusBadRequest)
		case errors.As(err, new(*UpstreamExchangeError)):
			h.writeCallbackError(w, CallbackErrFailed, "code exchange with Google failed", http.StatusBadRequest)
		default:
			h.logger.Error("Callback failed", "error", err)
			h.writeCallbackError(w, CallbackErrInternal, "An internal error occurred", http.StatusInternalServerError)
		}
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// ServeToken handles the broker token endpoint.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, "invalid_request", "Failed to parse request", http.StatusBadRequest)
		return
	}

	grantType := r.FormValue("grant_type")

	switch grantType {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(w, r)
	case "refresh_token":
		h.handleRefreshTokenGrant(w, r)
	default:
		h.writeError(w, "unsupported_grant_type", fmt.Sprintf("Grant type %s not supported", grantType), http.StatusBadRequest)
	}
}

// handleAuthorizationCodeGrant handles the authorization_code grant type
func (h *Handler) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	if code == "" {
		h.writeError(w, "invalid_request", "code is required", http.StatusBadRequest)
		return
	}

	clientID, oauthErr := h.authenticateClient(r)
	if oauthErr != nil {
		h.writeError(w, oauthErr.Code, oauthErr.Description, oauthErr.Status)
		return
	}

	tokenResp, oauthErr := h.provider.IssueToken(r.Context(), code, r.FormValue("code_verifier"), clientID)
	if oauthErr != nil {
		h.writeError(w, oauthErr.Code, oauthErr.Description, oauthErr.Status)
		return
	}

	h.writeTokenResponse(w, tokenResp)
}

// handleRefreshTokenGrant handles the refresh_token grant type
func (h *Handler) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	refreshToken := r.FormValue("refresh_token")
	if refreshToken == "" {
		h.writeError(w, "invalid_request", "refresh_token is required", http.StatusBadRequest)
		return
	}

	if _, oauthErr := h.authenticateClient(r); oauthErr != nil {
		h.writeError(w, oauthErr.Code, oauthErr.Description, oauthErr.Status)
		return
	}

	tokenResp, oauthErr := h.provider.RefreshToken(r.Context(), refreshToken)
	if oauthErr != nil {
		h.writeError(w, oauthErr.Code, oauthErr.Description, oauthErr.Status)
		return
	}

	h.writeTokenResponse(w, tokenResp)
}

// writeTokenResponse writes a token endpoint success response with the
// cache directives RFC 6749 requires.
func (h *Handler) writeTokenResponse(w http.ResponseWriter, tokenResp *TokenResponse) {
	h.setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(tokenResp)
}

// authenticateClient authenticates the relying party on the token endpoint.
// Supports client_secret_basic, client_secret_post and public clients.
func (h *Handler) authenticateClient(r *http.Request) (string, *OAuthError) {
	clientID := r.FormValue("client_id")
	clientSecret := r.FormValue("client_secret")

	if basicID, basicSecret, ok := r.BasicAuth(); ok {
		clientID = basicID
		clientSecret = basicSecret
	}

	if clientID == "" {
		// Public client flows carry PKCE instead of client credentials; the
		// code itself identifies the client.
		return "", nil
	}

	client, err := h.clientStore.GetClient(clientID)
	if err != nil {
		h.logger.Warn("Unknown client on token endpoint", "client_id", clientID)
		return "", ErrInvalidClient("Invalid client")
	}

	if client.TokenEndpointAuthMethod != "none" {
		if clientSecret == "" {
			return "", ErrInvalidClient("Client authentication required")
		}
		if err := h.clientStore.ValidateClientSecret(clientID, clientSecret); err != nil {
			h.logger.Warn("Client authentication failed", "client_id", clientID)
			return "", ErrInvalidClient("Invalid client credentials")
		}
	}

	return clientID, nil
}

// validateScopes validates requested Google API scopes against the supported
// list. Non-Google scopes (mcp:tools, openid and friends) are ignored.
func (h *Handler) validateScopes(scope string) error {
	for _, requested := range strings.Fields(scope) {
		if !strings.HasPrefix(requested, "https://") {
			h.logger.Debug("Ignoring non-Google scope", "scope", requested)
			continue
		}

		found := false
		for _, supported := range h.config.SupportedScopes {
			if requested == supported {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unsupported Google API scope: %s", requested)
		}
	}

	return nil
}

// validateRedirectURI validates a redirect URI according to OAuth 2.0
// Security Best Current Practice. Only http and https schemes are accepted;
// http is limited to loopback targets when the broker itself runs behind
// a non-loopback base URL.
func validateRedirectURI(uri string, serverResource string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid redirect_uri format: %s", uri)
	}

	if parsed.Fragment != "" {
		return fmt.Errorf("redirect_uri must not contain fragments: %s", uri)
	}

	if parsed.Scheme == "" {
		return fmt.Errorf("redirect_uri must have a scheme: %s", uri)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		schemeLower := strings.ToLower(parsed.Scheme)
		for _, dangerous := range DangerousSchemes {
			if schemeLower == dangerous {
				return fmt.Errorf("redirect_uri scheme %q is not allowed", parsed.Scheme)
			}
		}
		return fmt.Errorf("redirect_uri scheme %q is not supported (only http/https)", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("redirect_uri must have a host: %s", uri)
	}

	serverURL, err := url.Parse(serverResource)
	if err != nil {
		return fmt.Errorf("cannot validate redirect_uri: invalid server resource")
	}

	isProduction := !isLoopback(serverURL.Hostname())
	isLoopbackRedirect := isLoopback(parsed.Hostname())

	if isProduction && !isLoopbackRedirect && parsed.Scheme != "https" {
		return fmt.Errorf("redirect_uri must use HTTPS in production: %s", uri)
	}

	return nil
}

// isLoopback checks if a hostname is a loopback address
func isLoopback(hostname string) bool {
	hostname = strings.Trim(hostname, "[]")

	for _, loopback := range LoopbackAddresses {
		if hostname == loopback {
			return true
		}
	}

	return strings.HasPrefix(hostname, "127.")
}
