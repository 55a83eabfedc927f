// Package oauth implements the OAuth 2.1 broker between MCP clients and
// Google. The broker plays both sides of the flow: towards the MCP client
// it is an authorization server (RFC 8414 metadata, PKCE, refresh token
// rotation, RFC 7009 revocation), towards Google it is an ordinary OAuth
// client running the authorization-code flow.
//
// Google-issued credentials never cross the relying-party boundary. They
// live sealed (AES-256-GCM) in the session store; MCP clients only ever
// see the broker's own opaque tokens, which the middleware resolves back
// to Google credentials per request.
package oauth
