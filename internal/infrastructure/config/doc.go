// Package config provides 12-factor configuration management for the
// ScrapeGoat service and CLI.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Fetch: Remote document timeouts, retries and politeness
//   - Builder: Document size limit, node ID scheme and HTML sanitizing
//   - Output: Directory for OUTPUT statement files
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - FETCH_TIMEOUT, FETCH_RETRIES, FETCH_USER_AGENT, FETCH_RPS
//   - MAX_DOCUMENT_BYTES, ID_SCHEME
//   - OUTPUT_DIR
package config
