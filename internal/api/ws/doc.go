// Package ws is the WebSocket transport between displayed dApp pages and
// the cross-frame router.
//
// The main frame of each page opens one socket to /ws/page?url=<page url>.
// Requests from every frame of the page arrive on it as
// TONCONNECT_BRIDGE_REQUEST messages; responses and events go back down
// the same socket and the page script delivers them to the right frame.
//
// Example Usage:
//
//	handler := ws.NewHandler(eng, registry, ws.Options{Logger: logger})
//	router.GET("/ws/page", handler.HandleConnection)
package ws
