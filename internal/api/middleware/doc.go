// Package middleware provides the Gin middleware shared by every route:
// CORS for the wallet UI and per-client rate limiting.
package middleware
