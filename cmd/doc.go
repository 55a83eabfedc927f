// Package cmd implements the command-line interface for gcal-mcp-remote.
//
// This package provides the following commands:
//   - serve: Start the remote MCP server with the OAuth broker
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The serve command is the default command when no subcommand is specified.
package cmd
