// Package main is the entry point of the WalletKit bridge server.
//
// The server hosts the wallet bundle in an embedded script runtime and
// exposes it over HTTP, and connects displayed dApp pages to it through
// the injected TON Connect bridge.
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional YAML or TOML file (CONFIG_FILE or -config)
//   - CLI flags override both
//
// Usage:
//
//	./server -bundle ./walletkit.js -network testnet -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
