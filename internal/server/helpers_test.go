package server

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// observedLogger records log entries in memory so tests can assert on them
// without tying output to the test's lifetime.
func observedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

// fakeConn is an in-memory ClientConnection. Lines pushed with feed are
// returned by ReadLine; written lines are recorded.
type fakeConn struct {
	incoming  chan string
	closed    chan struct{}
	closeOnce sync.Once
	addr      string

	mu       sync.Mutex
	written  []string
	writeErr error
	notify   chan struct{}
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{
		incoming: make(chan string, 64),
		closed:   make(chan struct{}),
		addr:     addr,
		notify:   make(chan struct{}, 1),
	}
}

func (c *fakeConn) feed(lines ...string) {
	for _, line := range lines {
		c.incoming <- line
	}
}

// hangUp makes the next ReadLine return io.EOF once queued lines are drained.
func (c *fakeConn) hangUp() {
	close(c.incoming)
}

func (c *fakeConn) ReadLine() (string, error) {
	select {
	case <-c.closed:
		return "", net.ErrClosed
	default:
	}
	select {
	case line, ok := <-c.incoming:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-c.closed:
		return "", net.ErrClosed
	}
}

func (c *fakeConn) WriteLine(line string) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, line)
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string {
	return c.addr
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// waitForLines waits until at least n lines have been written.
func (c *fakeConn) waitForLines(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.lines()) >= n
	}, 2*time.Second, 5*time.Millisecond, "expected %d lines, got %v", n, c.lines())
	return c.lines()
}

type relayFixture struct {
	registry *Registry
	router   *Router
	log      *zap.SugaredLogger
	logs     *observer.ObservedLogs
}

func newRelayFixture(t *testing.T, p Pairing) *relayFixture {
	t.Helper()
	log, logs := observedLogger()
	registry := NewRegistry(p)
	return &relayFixture{
		registry: registry,
		router:   NewRouter(registry, p, log),
		log:      log,
		logs:     logs,
	}
}

func (f *relayFixture) newSession(t *testing.T, conn ClientConnection) *Session {
	t.Helper()
	return newSession(conn, f.registry, f.router, nil, f.log)
}

// startSession runs a session and waits for its welcome line.
func (f *relayFixture) startSession(t *testing.T, addr string) (*Session, *fakeConn, <-chan struct{}) {
	t.Helper()
	conn := newFakeConn(addr)
	s := f.newSession(t, conn)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run()
	}()
	conn.waitForLines(t, 1)
	return s, conn, done
}

func waitClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
}
