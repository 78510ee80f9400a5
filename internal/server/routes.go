// Package server wires HTTP handlers into a ServeMux for the gateway.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all gateway routes.
// It sets up handlers for health, readiness, stats, the WebSocket endpoint,
// and the test page.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/ready", s.ReadyHandler)
	mux.HandleFunc("/stats", s.StatsHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
