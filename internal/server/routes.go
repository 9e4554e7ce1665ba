// Package server wires HTTP handlers into a ServeMux for the realtime server.
package server

import "net/http"

// SetupRoutes returns a ServeMux serving the health check, the WebSocket
// endpoint and, when api is non-nil, the REST API under /api/.
func SetupRoutes(hub *Hub, gate Authenticator, api http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	health := NewHealthHandler(hub)
	mux.Handle("/", health)
	mux.Handle("/api/v1/healthCheck", health)
	mux.Handle("/ws", NewWebSocketHandler(hub, gate))
	if api != nil {
		mux.Handle("/api/", api)
	}
	return mux
}
