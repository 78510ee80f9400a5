// Package server wires the registry, router, worker pool, acceptor, gateway,
// and shutdown coordinator into a Server.
package server

import (
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the logger every component derives its named logger from.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithPairing overrides the pairing policy named in the configuration.
func WithPairing(p Pairing) Option {
	return func(s *Server) {
		if p != nil {
			s.pairing = p
		}
	}
}

// Server is the relay server.
type Server struct {
	cfg     Config
	log     *zap.SugaredLogger
	pairing Pairing

	registry    *Registry
	router      *Router
	pool        *WorkerPool
	coordinator *ShutdownCoordinator
	origins     *originPolicy
	upgrader    websocket.Upgrader

	addrMu   sync.RWMutex
	addr     net.Addr
	httpAddr net.Addr

	accepting atomic.Bool
	started   chan struct{}
	runOnce   sync.Once
}

// New builds a Server from cfg. Invalid values fall back to defaults; an
// unknown pairing policy is an error.
func New(cfg Config, opts ...Option) (*Server, error) {
	cfg = sanitizeConfig(cfg)

	s := &Server{
		cfg:     cfg,
		log:     zap.NewNop().Sugar(),
		started: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.pairing == nil {
		p, err := PairingByName(cfg.Pairing)
		if err != nil {
			return nil, err
		}
		s.pairing = p
	}

	s.registry = NewRegistry(s.pairing)
	s.router = NewRouter(s.registry, s.pairing, s.log.Named("router"))
	s.pool = NewWorkerPool(cfg.MaxSessions)
	s.coordinator = NewShutdownCoordinator(s.registry, s.pool, cfg.ShutdownTimeout, s.log.Named("shutdown"))
	s.origins = newOriginPolicy(cfg.AllowedOrigins, s.log.Named("gateway"))
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s, nil
}

// Run binds the TCP listener (and the HTTP gateway when configured) and
// serves until shutdown completes. A bind failure is returned; an orderly
// shutdown returns nil. Run may only be called once.
func (s *Server) Run() error {
	err := ErrServerClosed
	s.runOnce.Do(func() {
		err = s.run()
	})
	return err
}

func (s *Server) run() error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddress())
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.cfg.ListenAddress())
	}

	var (
		httpServer   *http.Server
		httpListener net.Listener
	)
	if s.cfg.HTTPAddress != "" {
		httpListener, err = net.Listen("tcp", s.cfg.HTTPAddress)
		if err != nil {
			_ = listener.Close()
			return errors.Wrapf(err, "listen on %s", s.cfg.HTTPAddress)
		}
		httpServer = CreateServer(s.cfg.HTTPAddress, s.Routes())
	}

	s.addrMu.Lock()
	s.addr = listener.Addr()
	if httpListener != nil {
		s.httpAddr = httpListener.Addr()
	}
	s.addrMu.Unlock()

	if !s.coordinator.attach(listener, httpServer) {
		if httpListener != nil {
			_ = httpListener.Close()
		}
		<-s.coordinator.Done()
		return nil
	}

	if httpServer != nil {
		gatewayLog := s.log.Named("gateway")
		go func() {
			if err := StartServer(httpServer, httpListener, gatewayLog); err != nil {
				gatewayLog.Errorw("Gateway stopped", "error", err)
			}
		}()
	}

	s.accepting.Store(true)
	close(s.started)
	s.log.Infow("Server listening", "addr", listener.Addr().String(), "pairing", s.cfg.Pairing, "max_sessions", s.cfg.MaxSessions)

	acceptor := &Acceptor{
		listener:     listener,
		running:      s.coordinator.Running,
		launch:       s.launch,
		maxLineBytes: s.cfg.MaxLineBytes,
		writeTimeout: s.cfg.WriteTimeout,
		log:          s.log.Named("acceptor"),
	}
	err = acceptor.Run()
	s.accepting.Store(false)

	// make sure everything is released however the loop ended
	s.coordinator.Shutdown()
	<-s.coordinator.Done()
	return err
}

// launch starts a session for conn on the worker pool.
func (s *Server) launch(conn ClientConnection) {
	session := newSession(conn, s.registry, s.router, newRateLimiter(s.cfg.RateLimit.Burst, s.cfg.RateLimit.RefillInterval), s.log.Named("session"))

	s.log.Infow("Client connected", "remote", conn.RemoteAddr(), "clients", s.registry.Count()+1)
	err := s.pool.Submit(session.Run, func() {
		_ = conn.Close()
	})
	if err != nil {
		s.log.Debugw("Rejecting client during shutdown", "remote", conn.RemoteAddr())
		_ = conn.Close()
	}
}

// Shutdown stops the server. It is idempotent; use Done to wait for it.
func (s *Server) Shutdown() {
	s.accepting.Store(false)
	s.coordinator.Shutdown()
}

// Done is closed once shutdown has completed.
func (s *Server) Done() <-chan struct{} {
	return s.coordinator.Done()
}

// Started is closed once the server is accepting clients.
func (s *Server) Started() <-chan struct{} {
	return s.started
}

// Accepting reports whether the acceptor is accepting clients.
func (s *Server) Accepting() bool {
	return s.accepting.Load() && s.coordinator.Running()
}

// Addr is the bound TCP address, nil before Run binds.
func (s *Server) Addr() net.Addr {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

// HTTPAddr is the bound gateway address, nil when the gateway is disabled.
func (s *Server) HTTPAddr() net.Addr {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.httpAddr
}

// Registry exposes the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Router exposes the router.
func (s *Server) Router() *Router {
	return s.router
}

// Operator returns an operator channel reading commands from in.
func (s *Server) Operator(in io.Reader) *OperatorChannel {
	return NewOperatorChannel(in, s.router, s.Shutdown, s.log.Named("operator"))
}
