// Package common provides shared plumbing for MCP tool implementations.
// It derives the acting account from the broker session on the request
// context and wraps tool registration with instrumentation, so individual
// tool packages never handle identity or metrics themselves.
package common
