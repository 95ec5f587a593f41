/*
Package tracing provides lightweight request tracing for the bridge service.

Every HTTP request gets a span. A trace id arriving in X-Trace-ID is
continued, otherwise a new ULID is minted, and both ids are echoed in the
response headers. Completed spans are logged asynchronously through zap.

# Usage

	tracer := tracing.New("bridge", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	// inside a handler
	logger.Info("forwarding call", tracing.Field(c.Request.Context()))
*/
package tracing
