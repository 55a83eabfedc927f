// Package calendar_tools provides MCP (Model Context Protocol) tools for Google Calendar operations.
//
// This package exposes Google Calendar functionality through a standardized MCP interface,
// allowing AI assistants to manage calendars, events, and scheduling on behalf of users.
//
// Handlers never hold credentials themselves. The HTTP layer resolves the
// broker token, builds a Calendar client for the authenticated user, and
// scopes it to the request context; handlers pick it up with
// calendar.CurrentClient. A handler invoked outside that scope gets an
// error rather than a client for some other user.
package calendar_tools
