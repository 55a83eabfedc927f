// Package google holds the Google API scope list and HTTP client plumbing
// shared by the OAuth broker and the Calendar service layer.
package google
