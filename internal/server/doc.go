// Package server provides the MCP server context, health checks, and the
// OAuth-enabled HTTP server for the Calendar MCP broker.
//
// # Key Components
//
// ServerContext carries shared state (metrics, audit logging, shutdown)
// across the MCP server. Calendar clients are deliberately not cached on
// it; each authenticated request gets its own client scoped to the
// request context, so one user's credential can never leak into another
// user's request.
//
// OAuthHTTPServer wraps an MCP server with the broker's OAuth 2.1 surface:
//   - Authorization Server Metadata (RFC 8414)
//   - Protected Resource Metadata (RFC 9728)
//   - Dynamic Client Registration (RFC 7591)
//   - Token Revocation (RFC 7009)
//
// # Security Features
//
// The OAuth server includes security-focused defaults:
//   - HTTPS required for production (localhost exempt for development)
//   - PKCE required (OAuth 2.1 compliance)
//   - State parameter required for CSRF protection
//   - Rate limiting per IP
//   - Stored Google credentials sealed with AES-256-GCM
//   - Security headers on all HTTP responses
//   - Audit logging for authentication events
package server
