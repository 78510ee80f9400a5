// Package server defines the identity, session state, and wire line types
// shared by the registry, router, and session logic.
package server

import (
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Identity is the small positive integer a client is known by while connected.
type Identity int

// SessionState tracks where a session is in its lifecycle.
type SessionState int32

const (
	// StateConnecting is the state of a session that has not sent its welcome line yet.
	StateConnecting SessionState = iota
	// StateActive is the state of a registered session that relays lines.
	StateActive
	// StateQuitting is entered on a quit command or a forced shutdown.
	StateQuitting
	// StateClosed is entered once the connection has been released.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateQuitting:
		return "QUITTING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// Lines the server writes to clients.
const (
	ServerBroadcastPrefix = "[SERVER] "
	QuitSelfNotice        = "Server: You have quit chatting. Goodbye!"
	PartnerLeftNotice     = "[Server] Partner left"
	ShutdownNotice        = "[Server] Shutting down."
	RoomFullNotice        = "[Server] Chat is full."
)

const quitCommand = "quit"

var (
	// ErrRoomFull is returned when the pairing policy has no identity left to hand out.
	ErrRoomFull = errors.New("no free identity")
	// ErrServerClosed is returned for work submitted after shutdown has started.
	ErrServerClosed = errors.New("server closed")
	// ErrLineTooLong is returned when a client line exceeds the configured maximum.
	ErrLineTooLong = errors.New("line too long")
	// ErrLineBreak is returned when a message framed by its transport carries
	// more than one line.
	ErrLineBreak = errors.New("line contains a line break")
)

// WelcomeLine is the first line every registered client receives.
func WelcomeLine(id Identity) string {
	return fmt.Sprintf("Connected. You are Chat %d. Type messages (or '%s' to exit).", id, quitCommand)
}

func isQuitCommand(line string) bool {
	return strings.EqualFold(line, quitCommand)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "io: read/write on closed pipe")
}
