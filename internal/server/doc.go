// Package server implements the line relay server.
//
// A Server accepts TCP clients (and, when configured, WebSocket clients
// through the HTTP gateway), assigns each one an Identity through a Pairing
// policy, and forwards every line a client sends to its partner. The operator
// channel broadcasts to every connected client and triggers shutdown.
//
// The implementation is split by concern: registry.go holds the only shared
// mutable state, router.go decides recipients, session.go runs the per-client
// read loop, acceptor.go and handlers.go admit connections, and shutdown.go
// tears everything down in order.
package server
