// Package http provides the Gin handlers of the bridge service.
//
// Routes:
//   - GET /health, GET /metrics/json
//   - POST /rpc/:method forwards the JSON body to a bundle method
//   - GET /events streams typed engine events as server-sent events
//   - GET /wallets, GET /sessions, DELETE /sessions/:id, POST /tonconnect
//   - GET /bridge.js serves the injectable page bridge
//   - GET /page?url= proxies a dApp page with the bridge injected
//
// Example Usage:
//
//	handlers := http.NewHandlers(http.Options{Engine: eng, Client: client})
//	handlers.Register(router)
package http
