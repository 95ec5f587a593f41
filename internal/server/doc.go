// Package server wires the bridge together: engine, storage, outbound
// HTTP client, cross-frame registry and hub, and the Gin router with its
// middleware stack.
//
// Server Lifecycle:
//  1. Load configuration from environment and optional file
//  2. Build logger, metrics and tracer
//  3. Open storage and the outbound HTTP client
//  4. Create the engine and attach the frames hub as event listener
//  5. Mount HTTP and WebSocket routes
//  6. Warm up the engine, then serve until the context is cancelled
//  7. Close: disconnect pages, destroy the engine, flush storage
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
