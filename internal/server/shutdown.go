package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ShutdownCoordinator stops the acceptor, notifies and closes every session,
// and releases the worker pool. Only the first Shutdown call does anything.
type ShutdownCoordinator struct {
	running atomic.Bool

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server

	registry *Registry
	pool     *WorkerPool
	timeout  time.Duration
	log      *zap.SugaredLogger
	done     chan struct{}
}

// NewShutdownCoordinator creates a coordinator in the running state.
func NewShutdownCoordinator(registry *Registry, pool *WorkerPool, timeout time.Duration, log *zap.SugaredLogger) *ShutdownCoordinator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &ShutdownCoordinator{
		registry: registry,
		pool:     pool,
		timeout:  timeout,
		log:      log,
		done:     make(chan struct{}),
	}
	c.running.Store(true)
	return c
}

// Running reports whether shutdown has not started yet.
func (c *ShutdownCoordinator) Running() bool {
	return c.running.Load()
}

// Done is closed once shutdown has completed.
func (c *ShutdownCoordinator) Done() <-chan struct{} {
	return c.done
}

// attach hands the bound listeners to the coordinator. It returns false, and
// closes them, if shutdown already started.
func (c *ShutdownCoordinator) attach(listener net.Listener, httpServer *http.Server) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		c.closeListener(listener)
		if httpServer != nil {
			_ = httpServer.Close()
		}
		return false
	}
	c.listener = listener
	c.httpServer = httpServer
	return true
}

// Shutdown runs the shutdown sequence once. Concurrent and later calls
// return immediately; wait on Done for completion.
func (c *ShutdownCoordinator) Shutdown() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	defer close(c.done)

	c.log.Infow("Server shutting down")

	c.mu.Lock()
	listener, httpServer := c.listener, c.httpServer
	c.mu.Unlock()

	c.closeListener(listener)
	if httpServer != nil {
		if err := ShutdownServer(httpServer, c.timeout, c.log); err != nil {
			_ = httpServer.Close()
		}
	}

	// Taking the sessions out and closing the registry is one step, so a
	// session registering concurrently is either notified here or refused.
	sessions := c.registry.Close()
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.forceQuit(ShutdownNotice)
		}(s)
	}
	wg.Wait()
	c.log.Infow("Closed client connections", "clients", len(sessions))

	if err := c.pool.Stop(c.timeout); err != nil {
		if err == context.DeadlineExceeded {
			c.log.Warnw("Worker pool stop timed out, some sessions may still be running", "timeout", c.timeout)
		} else {
			c.log.Warnw("Worker pool stop failed", "error", err)
		}
	}

	c.log.Infow("Server shutdown complete")
}

func (c *ShutdownCoordinator) closeListener(listener net.Listener) {
	if listener == nil {
		return
	}
	if err := listener.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warnw("Error closing listener", "error", err)
	}
}
