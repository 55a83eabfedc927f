// Package calendar provides a client for the Google Calendar API plus the
// request-scoped plumbing that routes each MCP request to the right account.
//
// A Client is built per request from the credential the OAuth broker resolved
// for the bearer token, then installed into the request context with
// RunScoped. Tool handlers fetch it back with CurrentClient; calling
// CurrentClient outside a scope fails with NoScopedClientError.
//
//	err := calendar.RunScoped(ctx, client, func(ctx context.Context) error {
//	    c, err := calendar.CurrentClient(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    _, err = c.ListEvents("primary", timeMin, timeMax, "")
//	    return err
//	})
package calendar
