package oauth

import "time"

// AuthorizationState is the one-time correlation record created when the
// broker redirects a user to Google. It is keyed by the broker-generated
// Google state parameter and consumed exactly once by the callback.
type AuthorizationState struct {
	// State is the relying party's own state parameter, echoed back unchanged
	State string

	// ClientID is the relying party client that started the flow
	ClientID string

	// RedirectURI is the relying party redirect target
	RedirectURI string

	// Scope is the requested scope string
	Scope string

	// CodeChallenge and CodeChallengeMethod carry the relying party's PKCE
	CodeChallenge       string
	CodeChallengeMethod string

	// GoogleState is the broker-generated state sent to Google
	GoogleState string

	// CreatedAt and ExpiresAt are Unix timestamps
	CreatedAt int64
	ExpiresAt int64
}

// AuthorizationCode is the broker's own one-time code handed to the relying
// party after a successful Google exchange. It carries the Google tokens
// until the relying party trades it in at the token endpoint.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string

	GoogleAccessToken  string
	GoogleRefreshToken string
	GoogleTokenExpiry  int64

	UserEmail string
	CreatedAt int64
	ExpiresAt int64
}

// UpstreamCredential is the Google-issued credential bound to one end user.
// The refresh token never crosses the relying-party boundary; only the
// broker's own artifacts do.
type UpstreamCredential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	Scope        string    `json:"scope,omitempty"`
	UserEmail    string    `json:"user_email"`
}

// BrokerSession maps a relying-party-visible token to an UpstreamCredential.
// The credential travels inside a sealed envelope; tampering with the stored
// record is detected at lookup time.
type BrokerSession struct {
	ID         string
	Credential UpstreamCredential
	IssuedAt   int64
	Revoked    bool
}

// ProtectedResourceMetadata represents OAuth 2.0 Protected Resource Metadata (RFC 9728)
type ProtectedResourceMetadata struct {
	// Resource is the identifier for the protected resource
	Resource string `json:"resource"`

	// AuthorizationServers lists the authorization servers that can issue tokens for this resource
	AuthorizationServers []string `json:"authorization_servers"`

	// BearerMethodsSupported lists the ways Bearer tokens can be sent (RFC 6750)
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`

	// ScopesSupported lists the scopes understood by this resource
	ScopesSupported []string `json:"scopes_supported,omitempty"`
}

// AuthorizationServerMetadata represents OAuth 2.0 Authorization Server Metadata (RFC 8414)
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint,omitempty"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
}

// TokenResponse is the relying-party-facing token endpoint response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// GoogleUserInfo represents the user information from Google's userinfo endpoint
type GoogleUserInfo struct {
	// Sub is the unique Google user ID
	Sub string `json:"sub"`

	// Email is the user's email address
	Email string `json:"email"`

	// EmailVerified indicates if the email is verified
	EmailVerified bool `json:"email_verified"`

	// Name is the user's full name
	Name string `json:"name"`

	// Picture is the URL of the user's profile picture
	Picture string `json:"picture"`
}

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

// CallbackError is the JSON body returned by the Google callback endpoint on
// failure. Detail is withheld for the internal category.
type CallbackError struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// Callback error categories.
const (
	CallbackErrGoogleOAuth = "google_oauth_error"
	CallbackErrMissing     = "missing_params"
	CallbackErrFailed      = "callback_failed"
	CallbackErrInternal    = "internal_error"
)

// ClientRegistrationRequest is a Dynamic Client Registration request (RFC 7591)
type ClientRegistrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// ClientRegistrationResponse is a Dynamic Client Registration response (RFC 7591)
type ClientRegistrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at"`
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	ClientName              string   `json:"client_name,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// RegisteredClient is a relying party known to the broker
type RegisteredClient struct {
	ClientID                string
	ClientSecret            string // never stored; present only in responses
	ClientSecretHash        string
	ClientIDIssuedAt        int64
	ClientSecretExpiresAt   int64
	RedirectURIs            []string
	TokenEndpointAuthMethod string
	GrantTypes              []string
	ResponseTypes           []string
	ClientName              string
	Scope                   string
}
