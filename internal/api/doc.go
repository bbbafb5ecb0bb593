// Package api implements the HTTP boundary consumed by the companion web UI
// and by the streaming transport's status webhooks. Handlers translate wire
// requests into stream controller and settings store calls and map domain
// errors onto HTTP status codes.
package api
