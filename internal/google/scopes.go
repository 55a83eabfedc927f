package google

// DefaultOAuthScopes are the Google OAuth scopes the broker requests.
//
// Calendar is the only Google API this server talks to; the OpenID Connect
// scopes are needed to identify the account behind a credential.
var DefaultOAuthScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",

	"https://www.googleapis.com/auth/calendar",
}
