package google

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// NewHTTPClient returns an HTTP client that authenticates requests with the
// given token source. The client is pinned to HTTP/1.1; Google's API
// frontends intermittently reset HTTP/2 streams on long-lived connections.
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	client := oauth2.NewClient(ctx, ts)

	if transport, ok := client.Transport.(*oauth2.Transport); ok {
		transport.Base = &http.Transport{
			ForceAttemptHTTP2: false,
		}
	}

	return client
}

// StaticTokenSource wraps a single token in a non-refreshing token source.
// Used when the broker has already ensured the token is fresh for the
// duration of the request.
func StaticTokenSource(token *oauth2.Token) oauth2.TokenSource {
	return oauth2.StaticTokenSource(token)
}
