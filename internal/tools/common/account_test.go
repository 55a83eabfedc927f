package common

import (
	"context"
	"testing"

	"github.com/teemow/gcal-mcp-remote/internal/mcp/oauth"
)

func TestAccountFromContext(t *testing.T) {
	session := &oauth.BrokerSession{
		ID: "session-123",
		Credential: oauth.UpstreamCredential{
			UserEmail: "user@example.com",
		},
	}

	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{
			name:     "no session",
			ctx:      context.Background(),
			expected: "",
		},
		{
			name:     "session with email",
			ctx:      oauth.ContextWithSession(context.Background(), session),
			expected: "user@example.com",
		},
		{
			name: "session without email",
			ctx: oauth.ContextWithSession(context.Background(), &oauth.BrokerSession{
				ID: "session-456",
			}),
			expected: "",
		},
		{
			name:     "nil session",
			ctx:      oauth.ContextWithSession(context.Background(), nil),
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AccountFromContext(tt.ctx); got != tt.expected {
				t.Errorf("AccountFromContext() = %q, expected %q", got, tt.expected)
			}
		})
	}
}
