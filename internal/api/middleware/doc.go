// Package middleware holds the gin middleware of the query service: CORS,
// per-client rate limiting, request IDs and access logging.
package middleware
