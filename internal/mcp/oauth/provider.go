package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/gcal-mcp-remote/internal/logging"
)

// AuthorizationRequest carries the parameters of an MCP client's
// authorization request after HTTP parsing.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	State               string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Provider implements the OAuth broker against Google. It plays both
// sides of the flow: authorization server towards MCP clients and
// OAuth client towards Google.
type Provider struct {
	config       *Config
	googleConfig *oauth2.Config
	flowStore    *FlowStore
	tokenStore   *TokenStore
	clientStore  *ClientStore
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewProvider creates the broker core from a validated config and the
// backing stores.
func NewProvider(config *Config, googleConfig *oauth2.Config, flowStore *FlowStore, tokenStore *TokenStore, clientStore *ClientStore, httpClient *http.Client, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Provider{
		config:       config,
		googleConfig: googleConfig,
		flowStore:    flowStore,
		tokenStore:   tokenStore,
		clientStore:  clientStore,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// BeginAuthorization validates an authorization request, records the
// pending flow state and returns the Google authorization URL to
// redirect the user agent to.
func (p *Provider) BeginAuthorization(req *AuthorizationRequest) (string, error) {
	if err := p.clientStore.ValidateRedirectURI(req.ClientID, req.RedirectURI); err != nil {
		return "", &InvalidRedirectError{RedirectURI: req.RedirectURI, Reason: err.Error()}
	}

	if err := validateRedirectURI(req.RedirectURI, p.config.Resource); err != nil {
		return "", &InvalidRedirectError{RedirectURI: req.RedirectURI, Reason: err.Error()}
	}

	// Correlates the Google callback with this pending flow. Never the
	// client's own state value.
	googleState, err := generateSecureToken(StateTokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	now := time.Now().Unix()
	authState := &AuthorizationState{
		State:               req.State,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		GoogleState:         googleState,
		CreatedAt:           now,
		ExpiresAt:           now + int64(DefaultStateTTL.Seconds()),
	}

	if err := p.flowStore.SaveAuthorizationState(authState); err != nil {
		return "", fmt.Errorf("failed to save authorization state: %w", err)
	}

	// offline access so Google issues a refresh token, forced consent so
	// it keeps doing so on re-authorization.
	googleAuthURL := p.googleConfig.AuthCodeURL(googleState,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
	)

	p.logger.Info("Redirecting to Google for authorization",
		"client_id", req.ClientID,
		"redirect_uri", req.RedirectURI,
		"google_state", hashForLogging(googleState),
	)

	return googleAuthURL, nil
}

// ExchangeGoogleCode consumes the pending flow state identified by
// googleState, exchanges the Google authorization code for upstream
// credentials and mints a broker authorization code. It returns the
// relying party redirect URL carrying that code and the client's
// echoed state.
//
// The state is consumed before anything else happens, so a second
// callback with the same state fails with InvalidStateError regardless
// of how the first one went.
func (p *Provider) ExchangeGoogleCode(ctx context.Context, googleState, code string) (string, error) {
	authState, err := p.flowStore.ConsumeAuthorizationState(googleState)
	if err != nil {
		return "", err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	googleToken, err := p.googleConfig.Exchange(ctx, code)
	if err != nil {
		p.logger.Error("Failed to exchange code with Google", "error", err)
		return "", &UpstreamExchangeError{Err: err}
	}

	userInfo, err := p.fetchGoogleUserInfo(ctx, googleToken.AccessToken)
	if err != nil {
		p.logger.Error("Failed to fetch Google user info", "error", err)
		return "", &UpstreamExchangeError{Err: err}
	}

	p.logger.Info("Google OAuth successful",
		logging.UserHash(userInfo.Email),
		slog.String("client_id", authState.ClientID),
	)

	authCode, err := generateSecureToken(StateTokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}

	now := time.Now().Unix()
	authCodeData := &AuthorizationCode{
		Code:                authCode,
		ClientID:            authState.ClientID,
		RedirectURI:         authState.RedirectURI,
		Scope:               authState.Scope,
		CodeChallenge:       authState.CodeChallenge,
		CodeChallengeMethod: authState.CodeChallengeMethod,
		GoogleAccessToken:   googleToken.AccessToken,
		GoogleRefreshToken:  googleToken.RefreshToken,
		GoogleTokenExpiry:   googleToken.Expiry.Unix(),
		UserEmail:           userInfo.Email,
		CreatedAt:           now,
		ExpiresAt:           now + int64(DefaultAuthorizationCodeTTL.Seconds()),
	}

	if err := p.flowStore.SaveAuthorizationCode(authCodeData); err != nil {
		return "", fmt.Errorf("failed to save authorization code: %w", err)
	}

	redirectURL, err := url.Parse(authState.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI %q: %w", authState.RedirectURI, err)
	}

	redirectQuery := redirectURL.Query()
	redirectQuery.Set("code", authCode)
	if authState.State != "" {
		redirectQuery.Set("state", authState.State)
	}
	redirectURL.RawQuery = redirectQuery.Encode()

	p.logger.Info("Redirecting back to MCP client",
		"client_id", authState.ClientID,
		"redirect_uri", authState.RedirectURI,
	)

	return redirectURL.String(), nil
}

// IssueToken redeems a broker authorization code for a bearer token
// pair. The code is consumed before validation, so a failed redemption
// burns it.
func (p *Provider) IssueToken(ctx context.Context, code, codeVerifier, clientID string) (*TokenResponse, *OAuthError) {
	authCode, err := p.flowStore.ConsumeAuthorizationCode(code)
	if err != nil {
		p.logger.Warn("Authorization code redemption failed", "error", err)
		return nil, ErrInvalidGrant("Invalid or expired authorization code")
	}

	if clientID == "" {
		clientID = authCode.ClientID
	}
	if authCode.ClientID != clientID {
		return nil, ErrInvalidGrant("Authorization code was issued to a different client")
	}

	if authCode.CodeChallenge != "" {
		if codeVerifier == "" {
			return nil, ErrInvalidRequest("code_verifier is required")
		}
		if len(codeVerifier) < MinCodeVerifierLength || len(codeVerifier) > MaxCodeVerifierLength {
			return nil, ErrInvalidRequest("code_verifier length is invalid")
		}
		if !ValidateCodeChallenge(codeVerifier, authCode.CodeChallenge, authCode.CodeChallengeMethod) {
			p.logger.Warn("PKCE validation failed", "client_id", clientID)
			return nil, ErrInvalidGrant("PKCE validation failed")
		}
	}

	googleToken := &oauth2.Token{
		AccessToken:  authCode.GoogleAccessToken,
		RefreshToken: authCode.GoogleRefreshToken,
		Expiry:       time.Unix(authCode.GoogleTokenExpiry, 0),
	}

	if isTokenExpired(googleToken) && googleToken.RefreshToken != "" {
		refreshed, refreshErr := refreshGoogleToken(ctx, googleToken, p.googleConfig, p.httpClient)
		if refreshErr != nil {
			p.logger.Warn("Failed to refresh Google token during redemption", "error", refreshErr)
			return nil, ErrInvalidGrant("Upstream token refresh failed. Please re-authenticate.")
		}
		if refreshed.RefreshToken == "" {
			refreshed.RefreshToken = googleToken.RefreshToken
		}
		googleToken = refreshed
	}

	accessToken, err := generateSecureToken(AccessTokenLength)
	if err != nil {
		p.logger.Error("Failed to generate access token", "error", err)
		return nil, ErrServerError("Failed to generate access token")
	}

	refreshToken, err := generateSecureToken(RefreshTokenLength)
	if err != nil {
		p.logger.Error("Failed to generate refresh token", "error", err)
		return nil, ErrServerError("Failed to generate refresh token")
	}

	cred := UpstreamCredential{
		AccessToken:  googleToken.AccessToken,
		RefreshToken: googleToken.RefreshToken,
		Expiry:       googleToken.Expiry,
		Scope:        authCode.Scope,
		UserEmail:    authCode.UserEmail,
	}

	expiresAt := time.Now().Add(p.config.Security.RefreshTokenTTL)
	sessionID, err := p.tokenStore.Put(cred, accessToken, refreshToken, expiresAt)
	if err != nil {
		p.logger.Error("Failed to store broker session", "error", err)
		return nil, ErrServerError("Failed to store token")
	}

	p.logger.Info("Issued access token",
		slog.String("client_id", clientID),
		logging.UserHash(authCode.UserEmail),
		slog.String("session_id", sessionID),
		slog.String("scope", authCode.Scope),
	)

	expiresIn := googleToken.Expiry.Unix() - time.Now().Unix()
	if expiresIn <= 0 {
		expiresIn = int64(DefaultAccessTokenTTL.Seconds())
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		RefreshToken: refreshToken,
		Scope:        authCode.Scope,
	}, nil
}

// RefreshToken redeems a broker refresh token for a new token pair,
// rotating the refresh token unless rotation is disabled.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, *OAuthError) {
	session, err := p.tokenStore.GetByRefreshToken(refreshToken)
	if err != nil {
		if IsRevoked(err) {
			p.logger.Warn("Refresh attempted with revoked token")
			return nil, ErrInvalidGrant("Token has been revoked")
		}
		p.logger.Warn("Invalid refresh token", "error", err)
		return nil, ErrInvalidGrant("Invalid or expired refresh token")
	}

	cred := session.Credential

	googleToken := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
	}

	if googleToken.RefreshToken != "" {
		refreshed, refreshErr := refreshGoogleToken(ctx, googleToken, p.googleConfig, p.httpClient)
		if refreshErr != nil {
			p.logger.Warn("Failed to refresh Google token",
				logging.UserHash(cred.UserEmail),
				logging.Err(refreshErr))
			return nil, ErrInvalidGrant("Token refresh failed. Please re-authenticate.")
		}
		if refreshed.RefreshToken == "" {
			refreshed.RefreshToken = googleToken.RefreshToken
		}
		googleToken = refreshed
		p.logger.Info("Google token refreshed via refresh_token grant", logging.UserHash(cred.UserEmail))
	}

	newAccessToken, err := generateSecureToken(AccessTokenLength)
	if err != nil {
		p.logger.Error("Failed to generate access token", "error", err)
		return nil, ErrServerError("Failed to generate access token")
	}

	newRefreshToken := refreshToken
	if !p.config.Security.DisableRefreshTokenRotation {
		rotated, rotateErr := generateSecureToken(RefreshTokenLength)
		if rotateErr != nil {
			p.logger.Error("Failed to generate rotated refresh token", "error", rotateErr)
			return nil, ErrServerError("Failed to generate refresh token")
		}
		newRefreshToken = rotated
	}

	cred.AccessToken = googleToken.AccessToken
	cred.RefreshToken = googleToken.RefreshToken
	cred.Expiry = googleToken.Expiry

	expiresAt := time.Now().Add(p.config.Security.RefreshTokenTTL)
	if err := p.tokenStore.Rotate(session.ID, cred, newAccessToken, newRefreshToken, expiresAt); err != nil {
		p.logger.Error("Failed to rotate broker session", "session_id", session.ID, "error", err)
		return nil, ErrServerError("Failed to store token")
	}

	p.logger.Info("Issued new access token via refresh_token grant",
		logging.UserHash(cred.UserEmail),
		slog.String("session_id", session.ID),
	)

	expiresIn := googleToken.Expiry.Unix() - time.Now().Unix()
	if expiresIn <= 0 {
		expiresIn = int64(DefaultAccessTokenTTL.Seconds())
	}

	return &TokenResponse{
		AccessToken:  newAccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		RefreshToken: newRefreshToken,
		Scope:        cred.Scope,
	}, nil
}

// Resolve maps a bearer token presented by an MCP client to the broker
// session holding the Google credentials. Unknown tokens yield
// InvalidTokenError, revoked sessions RevokedCredentialError.
func (p *Provider) Resolve(ctx context.Context, accessToken string) (*BrokerSession, error) {
	session, err := p.tokenStore.Get(accessToken)
	if err != nil {
		if IsNotFound(err) {
			return nil, &InvalidTokenError{}
		}
		return nil, err
	}

	// Keep the upstream credential usable for the whole request that is
	// about to run on it.
	if isTokenExpired(&oauth2.Token{AccessToken: session.Credential.AccessToken, Expiry: session.Credential.Expiry}) &&
		session.Credential.RefreshToken != "" {
		googleToken := &oauth2.Token{
			AccessToken:  session.Credential.AccessToken,
			RefreshToken: session.Credential.RefreshToken,
			Expiry:       session.Credential.Expiry,
		}
		refreshed, refreshErr := refreshGoogleToken(ctx, googleToken, p.googleConfig, p.httpClient)
		if refreshErr != nil {
			p.logger.Warn("Failed to refresh Google token during resolve",
				"session_id", session.ID,
				"error", refreshErr)
			return nil, &InvalidTokenError{}
		}
		if refreshed.RefreshToken == "" {
			refreshed.RefreshToken = session.Credential.RefreshToken
		}

		session.Credential.AccessToken = refreshed.AccessToken
		session.Credential.RefreshToken = refreshed.RefreshToken
		session.Credential.Expiry = refreshed.Expiry

		if err := p.tokenStore.UpdateCredential(session.ID, session.Credential); err != nil {
			p.logger.Warn("Failed to persist refreshed credential",
				"session_id", session.ID,
				"error", err)
		}
	}

	return session, nil
}

// Revoke marks the broker session behind the given token as revoked
// and best-effort revokes the upstream Google credential. Revocation
// is terminal: the session stays revoked across restarts.
func (p *Provider) Revoke(ctx context.Context, token string) error {
	session, err := p.tokenStore.Get(token)
	if err != nil && IsNotFound(err) {
		session, err = p.tokenStore.GetByRefreshToken(token)
	}
	if err != nil {
		if IsRevoked(err) {
			// Already terminal, nothing to do.
			return nil
		}
		p.logger.Debug("Revocation of unknown token", "token", hashForLogging(token))
		return nil
	}

	if session.Credential.RefreshToken != "" {
		if revokeErr := p.revokeGoogleToken(ctx, session.Credential.RefreshToken); revokeErr != nil {
			p.logger.Warn("Failed to revoke Google token",
				"session_id", session.ID,
				"error", revokeErr)
		}
	}

	if err := p.tokenStore.Revoke(token); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	p.logger.Info("Revoked broker session", "session_id", session.ID)
	return nil
}

// revokeGoogleToken calls Google's RFC 7009 revocation endpoint.
func (p *Provider) revokeGoogleToken(ctx context.Context, token string) error {
	form := url.Values{}
	form.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://oauth2.googleapis.com/revoke",
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create revocation request: %w", err)
	}
	req.URL.RawQuery = form.Encode()
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revocation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Google revocation returned status %d", resp.StatusCode)
	}

	return nil
}

// fetchGoogleUserInfo fetches the account identity behind an access token.
func (p *Provider) fetchGoogleUserInfo(ctx context.Context, accessToken string) (*GoogleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Google userinfo returned status %d", resp.StatusCode)
	}

	var userInfo GoogleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &userInfo, nil
}
