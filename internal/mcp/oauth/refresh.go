package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// refreshGoogleToken exchanges a refresh token for a fresh Google access
// token using the standard oauth2 token source.
func refreshGoogleToken(ctx context.Context, token *oauth2.Token, config *oauth2.Config, httpClient *http.Client) (*oauth2.Token, error) {
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	tokenSource := config.TokenSource(ctx, token)
	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	return newToken, nil
}

// isTokenExpired reports whether a token has expired or will expire within
// TokenExpiringThreshold seconds. Tokens without an expiry never expire.
func isTokenExpired(token *oauth2.Token) bool {
	if token.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(TokenExpiringThreshold * time.Second).After(token.Expiry)
}
