package oauth

import (
	"net/http"
)

// ServeTokenRevocation handles token revocation requests (RFC 7009).
// POST /oauth/revoke with form data: token, token_type_hint (optional)
//
// Per RFC 7009 the endpoint returns 200 even for unknown tokens, so a
// caller cannot probe which tokens exist.
func (h *Handler) ServeTokenRevocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, "invalid_request", "Failed to parse request", http.StatusBadRequest)
		return
	}

	token := r.FormValue("token")
	if token == "" {
		h.writeError(w, "invalid_request", "token is required", http.StatusBadRequest)
		return
	}

	// Authenticate the client when credentials are presented. Public
	// clients may revoke their own tokens without authentication.
	if _, oauthErr := h.authenticateClient(r); oauthErr != nil {
		h.writeError(w, oauthErr.Code, oauthErr.Description, oauthErr.Status)
		return
	}

	if err := h.provider.Revoke(r.Context(), token); err != nil {
		// Revocation is best effort toward the caller; log and fall through.
		h.logger.Warn("Token revocation failed", "error", err)
	}

	h.setSecurityHeaders(w)
	w.WriteHeader(http.StatusOK)
}
