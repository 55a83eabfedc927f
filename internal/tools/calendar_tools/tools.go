package calendar_tools

import (
	"context"
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gcal-mcp-remote/internal/calendar"
	"github.com/teemow/gcal-mcp-remote/internal/server"
)

// getCalendarClient returns the Calendar client scoped to this request.
// The HTTP layer installs it after resolving the broker token, so a failure
// here means the handler ran outside an authenticated request.
func getCalendarClient(ctx context.Context) (*calendar.Client, error) {
	return calendar.CurrentClient(ctx)
}

// RegisterCalendarTools registers all Calendar-related tools with the MCP server.
// With readOnly set, mutating tools (update, delete) are not registered.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := RegisterEventTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register event tools: %w", err)
	}

	if err := RegisterCalendarListTools(s, sc); err != nil {
		return fmt.Errorf("failed to register calendar list tools: %w", err)
	}

	if err := RegisterSchedulingTools(s, sc); err != nil {
		return fmt.Errorf("failed to register scheduling tools: %w", err)
	}

	return nil
}
