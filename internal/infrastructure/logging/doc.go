// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a named *zap.Logger rather than the wrapper so they can
// be wired with zap.NewNop() in tests:
//
//	logger := logging.FromConfig("debug", true)
//	eng := engine.New(cfg, engine.WithLogger(logger.Named("engine")))
//
// Script console output is routed through the "engine.console" logger.
package logging
