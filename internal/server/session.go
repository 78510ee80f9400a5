// Package server runs one Session per connected client: registration, the
// welcome line, the read loop, and cleanup.
package server

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Session is one client's connection plus its identity and lifecycle state.
// Its read loop is the only reader of the connection.
type Session struct {
	id       uuid.UUID
	identity Identity
	conn     ClientConnection
	state    atomic.Int32
	registry *Registry
	router   *Router
	limiter  *rate.Limiter
	log      *zap.SugaredLogger

	// ctx is cancelled when the session is forced to stop, releasing a read
	// loop that is waiting on the rate limiter.
	ctx    context.Context
	cancel context.CancelFunc

	// sendMu orders the welcome line before anything relayed to this session.
	sendMu sync.Mutex
}

func newSession(conn ClientConnection, registry *Registry, router *Router, limiter *rate.Limiter, log *zap.SugaredLogger) *Session {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		conn:     conn,
		registry: registry,
		router:   router,
		limiter:  limiter,
		log:      log.With("session_id", id.String(), "remote", conn.RemoteAddr()),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// ID is the session's unique trace id.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Identity is the identity assigned at registration, zero before that.
func (s *Session) Identity() Identity {
	return s.identity
}

// State reports the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// RemoteAddr is the client's network address.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr()
}

// Send writes one line to the client.
func (s *Session) Send(line string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.conn.WriteLine(line)
}

// Close releases the connection. Closing twice is a no-op.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Run registers the session, greets the client, and relays its lines until
// the client quits or the connection fails. It always releases the
// connection and deregisters before returning.
func (s *Session) Run() {
	defer s.finish()

	if !s.join() {
		return
	}
	s.readLoop()
}

func (s *Session) join() bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	id, err := s.registry.Register(s)
	if err != nil {
		if errors.Is(err, ErrRoomFull) {
			s.log.Infow("Rejecting client, no identity available")
			if werr := s.conn.WriteLine(RoomFullNotice); werr != nil {
				s.log.Debugw("Error writing room full notice", "error", werr)
			}
		} else {
			s.log.Debugw("Registration refused", "error", err)
		}
		return false
	}

	s.log = s.log.With("identity", id)
	if err := s.conn.WriteLine(WelcomeLine(id)); err != nil {
		s.log.Debugw("Error writing welcome line", "error", err)
		return false
	}

	// a forced shutdown may already have moved the session on
	s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive))
	s.log.Infow("Client registered", "clients", s.registry.Count())
	return true
}

func (s *Session) readLoop() {
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			s.handleReadError(err)
			return
		}

		if isQuitCommand(line) {
			s.quit()
			return
		}

		if !s.throttle() {
			return
		}

		s.router.Relay(s.identity, line)
	}
}

// quit tells the client and its partner that the client left.
func (s *Session) quit() {
	s.state.Store(int32(StateQuitting))
	s.log.Infow("Client quit")

	if err := s.Send(QuitSelfNotice); err != nil {
		s.log.Debugw("Error writing quit notice", "error", err)
	}
	s.router.Relay(s.identity, PartnerLeftNotice)
}

// forceQuit is the shutdown path: notify the client, then drop the
// connection so the read loop fails and exits.
func (s *Session) forceQuit(notice string) {
	s.state.Store(int32(StateQuitting))
	s.cancel()
	if err := s.Send(notice); err != nil {
		s.log.Debugw("Error writing shutdown notice", "error", err)
	}
	if err := s.Close(); err != nil {
		s.log.Warnw("Error closing connection", "error", err)
	}
}

// throttle holds the read loop until the rate limiter admits the next line.
// Lines are delayed, never dropped. It returns false once the session is
// being stopped.
func (s *Session) throttle() bool {
	if s.limiter == nil || s.limiter.Allow() {
		return true
	}
	s.log.Debugw("Rate limit reached, delaying line", "burst", s.limiter.Burst())
	if err := s.limiter.Wait(s.ctx); err != nil {
		s.log.Debugw("Stopped while waiting on rate limit", "error", err)
		return false
	}
	return true
}

// handleReadError logs the reason the read loop stopped.
func (s *Session) handleReadError(err error) {
	switch {
	case errors.Is(err, ErrLineTooLong):
		s.log.Warnw("Line exceeded maximum size, disconnecting", "error", err)
	case errors.Is(err, ErrLineBreak):
		s.log.Warnw("Message contained a line break, disconnecting", "error", err)
	case isExpectedCloseError(err):
		s.log.Debugw("Connection closed", "error", err)
	default:
		s.log.Warnw("Read error", "error", err)
	}
}

func (s *Session) finish() {
	s.cancel()
	s.state.Store(int32(StateClosed))
	removed := s.registry.Remove(s)
	if err := s.Close(); err != nil {
		s.log.Warnw("Error closing connection", "error", err)
	}
	if removed {
		s.log.Infow("Client disconnected", "remaining", s.registry.Count())
	}
}
