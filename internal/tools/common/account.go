package common

import (
	"context"

	"github.com/teemow/gcal-mcp-remote/internal/mcp/oauth"
)

// AccountFromContext returns the email of the authenticated Google account
// behind this request, or "" when the request carries no broker session.
// Identity always comes from the validated Bearer token, never from tool
// arguments.
func AccountFromContext(ctx context.Context) string {
	if session, ok := oauth.GetSessionFromContext(ctx); ok && session != nil {
		return session.Credential.UserEmail
	}
	return ""
}
