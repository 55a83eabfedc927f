package calendar

import (
	"context"
)

// NoScopedClientError indicates code asked for the request-scoped Calendar
// client outside of a scope established by WithClient or RunScoped. This is
// a programming error, not a runtime condition.
type NoScopedClientError struct{}

func (e *NoScopedClientError) Error() string {
	return "no Calendar client in scope; handler invoked outside a credential scope"
}

// clientKeyType is unexported so no other package can collide with the key.
type clientKeyType struct{}

var clientKey clientKeyType

// WithClient returns a context carrying the given client as the
// request-scoped Calendar client.
func WithClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, clientKey, c)
}

// CurrentClient returns the Calendar client scoped to this request.
// Concurrent requests each see their own client; nothing is shared through
// package state.
func CurrentClient(ctx context.Context) (*Client, error) {
	c, ok := ctx.Value(clientKey).(*Client)
	if !ok || c == nil {
		return nil, &NoScopedClientError{}
	}
	return c, nil
}

// RunScoped installs the client for the duration of fn. The scope ends when
// fn returns; the client never leaks past it.
func RunScoped(ctx context.Context, c *Client, fn func(ctx context.Context) error) error {
	return fn(WithClient(ctx, c))
}
