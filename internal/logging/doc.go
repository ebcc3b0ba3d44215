// Package logging configures the process logger and provides field helpers
// shared by every package that touches key material.
//
// Log lines may carry sizes, ids and error codes. They never carry raw key or
// plaintext bytes; use SizeFields rather than formatting a secret.
package logging
