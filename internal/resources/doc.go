// Package resources provides MCP resources for exposing user and session
// data. Resources are read-only data sources MCP clients can fetch, such as
// the authenticated account's profile and calendar list.
package resources
