// Package server adapts gorilla WebSocket connections to ClientConnection so
// browser clients join the same relay as TCP clients.
package server

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// closeGracePeriod bounds the close frame written before the socket is dropped.
const closeGracePeriod = time.Second

// wsConnection carries one line per text message.
type wsConnection struct {
	conn         *websocket.Conn
	addr         string
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
	closeErr     error
}

func newWSConnection(conn *websocket.Conn, addr string, maxLineBytes int, writeTimeout time.Duration) *wsConnection {
	if maxLineBytes > 0 {
		conn.SetReadLimit(int64(maxLineBytes))
	}
	return &wsConnection{
		conn:         conn,
		addr:         addr,
		writeTimeout: writeTimeout,
	}
}

func (c *wsConnection) ReadLine() (string, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return "", ErrLineTooLong
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			return "", err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		line := strings.TrimRight(string(data), "\r\n")
		// a newline inside the message would become extra lines for a TCP partner
		if strings.ContainsAny(line, "\r\n") {
			return "", ErrLineBreak
		}
		return line, nil
	}
}

func (c *wsConnection) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsConnection) Close() error {
	c.closeOnce.Do(func() {
		// WriteControl is safe to call concurrently with WriteMessage.
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))

		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.closeErr = err
		}
	})
	return c.closeErr
}

func (c *wsConnection) RemoteAddr() string {
	return c.addr
}
