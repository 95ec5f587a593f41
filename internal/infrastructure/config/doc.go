// Package config provides 12-factor configuration management for the bridge.
//
// Configuration is loaded from environment variables with sensible defaults.
// A YAML or TOML file named by CONFIG_FILE is overlaid last, so values set in
// the file win over the environment, which wins over defaults.
//
// Configuration Sections:
//   - Server: HTTP listener and CORS origins
//   - Engine: bundle location, network, call and init timeouts
//   - Storage: key/value store path and key prefix
//   - HTTP: outbound client timeouts, retries, rate limit and breaker
//   - Frames: cross-frame router and page proxy settings
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s\n", cfg.Server.Address())
//
// Environment Variables:
//   - PORT, HOST, ALLOWED_ORIGINS, SHUTDOWN_TIMEOUT
//   - ENGINE_BUNDLE, ENGINE_NETWORK, ENGINE_API_URL, ENGINE_CALL_TIMEOUT
//   - STORAGE_PATH, STORAGE_PREFIX
//   - HTTP_TIMEOUT, HTTP_RETRY_MAX, HTTP_RPS, HTTP_BURST
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST
//   - CONFIG_FILE
package config
