/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

Prometheus metrics for the bridge: correlated calls, pending-call depth,
event delivery and listener failures, shim timers and network operations,
frame routing and page connections, plus HTTP request metrics for the API.

Each Metrics value owns its registry, so constructing several engines in one
process (or in tests) never trips duplicate registration.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "listSessions")
	// ... perform call ...
	timer.Stop(monitoring.StatusOK)

All recorders accept a nil *Metrics.
*/
package monitoring
