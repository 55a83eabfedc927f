package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// contextKey is the type for context keys
type contextKey string

const (
	// sessionContextKey is the key for storing the broker session in the request context
	sessionContextKey contextKey = "broker_session"
)

// ValidateBrokerToken is middleware that resolves the bearer token on a
// request to its broker session. Requests without a valid token get a 401
// with a WWW-Authenticate header pointing at the resource metadata, which
// is what triggers the MCP client's OAuth discovery.
func (h *Handler) ValidateBrokerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(
				`Bearer realm="%s", resource_metadata="/.well-known/oauth-protected-resource"`,
				h.config.Resource,
			))
			h.writeUnauthorizedError(w, "missing_token", "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(
				`Bearer realm="%s", resource_metadata="/.well-known/oauth-protected-resource", error="invalid_token", error_description="Invalid Authorization header format"`,
				h.config.Resource,
			))
			h.writeUnauthorizedError(w, "invalid_token", "Invalid Authorization header format")
			return
		}

		session, err := h.provider.Resolve(r.Context(), parts[1])
		if err != nil {
			errorDesc := "Token is invalid or expired. Please re-authenticate through your MCP client."
			if IsRevoked(err) {
				errorDesc = "Token has been revoked. Please re-authenticate through your MCP client."
			} else if IsIntegrity(err) {
				h.logger.Error("Stored credential failed integrity check", "error", err)
				errorDesc = "Stored credential could not be verified. Please re-authenticate through your MCP client."
			}

			w.Header().Set("WWW-Authenticate", fmt.Sprintf(
				`Bearer realm="%s", resource_metadata="/.well-known/oauth-protected-resource", error="invalid_token", error_description="%s"`,
				h.config.Resource,
				errorDesc,
			))
			h.writeUnauthorizedError(w, "invalid_token", errorDesc)
			return
		}

		ctx := ContextWithSession(r.Context(), session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ValidateBrokerTokenFunc is a function-based variant of ValidateBrokerToken
func (h *Handler) ValidateBrokerTokenFunc(next http.HandlerFunc) http.HandlerFunc {
	return h.ValidateBrokerToken(next).ServeHTTP
}

// ContextWithSession returns a context carrying the given broker session.
func ContextWithSession(ctx context.Context, session *BrokerSession) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// GetSessionFromContext retrieves the broker session from the request context
func GetSessionFromContext(ctx context.Context) (*BrokerSession, bool) {
	session, ok := ctx.Value(sessionContextKey).(*BrokerSession)
	return session, ok
}

// writeUnauthorizedError writes an OAuth error response with 401 status
func (h *Handler) writeUnauthorizedError(w http.ResponseWriter, errorCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:            errorCode,
		ErrorDescription: description,
	})
}
