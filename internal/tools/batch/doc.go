// Package batch provides shared utilities for batch Calendar operations.
//
// Tools that act on multiple events or calendars accept either a single
// string or an array of strings for their identifier parameters. This
// package parses those parameters, runs the per-item operation, and formats
// aggregated results so partial failures are reported per item instead of
// failing the whole call.
package batch
