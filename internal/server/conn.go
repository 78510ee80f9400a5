package server

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ClientConnection is one client's transport, read and written a line at a
// time. WriteLine may be called from several goroutines; each call writes one
// whole line. Close may race with ReadLine and WriteLine, which then fail.
type ClientConnection interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
}

type tcpConnection struct {
	conn         net.Conn
	maxLineBytes int
	scanner      *bufio.Scanner
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
	closeErr     error
}

func newTCPConnection(conn net.Conn, maxLineBytes int, writeTimeout time.Duration) *tcpConnection {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultConfig().MaxLineBytes
	}
	initial := maxLineBytes
	if initial > 4096 {
		initial = 4096
	}

	scanner := bufio.NewScanner(conn)
	// room for the delimiter and an optional carriage return
	scanner.Buffer(make([]byte, 0, initial), maxLineBytes+2)

	return &tcpConnection{
		conn:         conn,
		maxLineBytes: maxLineBytes,
		scanner:      scanner,
		writeTimeout: writeTimeout,
	}
}

func (c *tcpConnection) ReadLine() (string, error) {
	if c.scanner.Scan() {
		line := strings.TrimSuffix(c.scanner.Text(), "\r")
		if len(line) > c.maxLineBytes {
			return "", ErrLineTooLong
		}
		return line, nil
	}
	if err := c.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return "", ErrLineTooLong
		}
		return "", err
	}
	return "", io.EOF
}

func (c *tcpConnection) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

func (c *tcpConnection) Close() error {
	c.closeOnce.Do(func() {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.closeErr = err
		}
	})
	return c.closeErr
}

func (c *tcpConnection) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
