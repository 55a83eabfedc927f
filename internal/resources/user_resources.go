package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gcal-mcp-remote/internal/calendar"
	"github.com/teemow/gcal-mcp-remote/internal/server"
)

// RegisterUserResources registers resources describing the authenticated
// user and their calendars. Both resources read through the request-scoped
// Calendar client, so they are only available on authenticated transports.
func RegisterUserResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	profileResource := mcp.NewResource(
		"user://profile",
		"Current User Profile",
		mcp.WithResourceDescription("The Google account behind this session and its primary calendar"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(profileResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleUserProfile(ctx, request)
	})

	calendarsResource := mcp.NewResource(
		"user://calendars",
		"Calendar List",
		mcp.WithResourceDescription("All calendars visible to the authenticated account"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(calendarsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleCalendarList(ctx, request)
	})

	return nil
}

func handleUserProfile(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	client, err := calendar.CurrentClient(ctx)
	if err != nil {
		return nil, err
	}

	primary, err := client.GetPrimaryCalendar()
	if err != nil {
		return nil, fmt.Errorf("failed to get primary calendar: %w", err)
	}

	profileData := map[string]interface{}{
		"account": client.Account(),
		"primaryCalendar": map[string]interface{}{
			"id":       primary.ID,
			"summary":  primary.Summary,
			"timeZone": primary.TimeZone,
		},
	}

	return jsonResource(request.Params.URI, profileData)
}

func handleCalendarList(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	client, err := calendar.CurrentClient(ctx)
	if err != nil {
		return nil, err
	}

	calendars, err := client.ListCalendars()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	entries := make([]map[string]interface{}, 0, len(calendars))
	for _, cal := range calendars {
		entries = append(entries, map[string]interface{}{
			"id":         cal.ID,
			"summary":    cal.Summary,
			"timeZone":   cal.TimeZone,
			"primary":    cal.Primary,
			"accessRole": cal.AccessRole,
		})
	}

	return jsonResource(request.Params.URI, map[string]interface{}{
		"account":   client.Account(),
		"calendars": entries,
	})
}

func jsonResource(uri string, data interface{}) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
