// Package server constructs and starts the HTTP gateway with helpers that
// apply sensible production defaults.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// CreateServer creates and configures an HTTP server with the specified address and handler.
// It sets reasonable timeout values for production use.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer serves HTTP on listener until the server is shut down.
// It returns nil after a shutdown.
func StartServer(server *http.Server, listener net.Listener, log *zap.SugaredLogger) error {
	log.Infow("Gateway listening", "addr", listener.Addr().String())
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration, log *zap.SugaredLogger) error {
	log.Infow("Shutting down HTTP gateway")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warnw("HTTP gateway shutdown error", "error", err)
		return err
	}

	log.Infow("HTTP gateway shutdown completed")
	return nil
}
