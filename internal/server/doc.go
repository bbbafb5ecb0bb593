// Package server assembles the coordinator's HTTP surface behind a single
// multiplexer. The middleware chain of request IDs, security headers, CORS,
// rate limiting, metrics, and logging keeps every handler behind the same
// protections and instrumentation.
package server
