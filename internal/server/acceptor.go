package server

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// acceptRetryDelay keeps a persistent accept failure (e.g. EMFILE) from
// spinning the loop.
const acceptRetryDelay = 10 * time.Millisecond

// Acceptor is the TCP accept loop. Every accepted connection is handed to
// launch, which must not block.
type Acceptor struct {
	listener     net.Listener
	running      func() bool
	launch       func(ClientConnection)
	maxLineBytes int
	writeTimeout time.Duration
	log          *zap.SugaredLogger
}

// Run accepts until the listener is closed. A closed listener is the stop
// signal and is not an error; other accept errors are logged and retried.
func (a *Acceptor) Run() error {
	for a.running() {
		conn, err := a.listener.Accept()
		if err != nil {
			if !a.running() || errors.Is(err, net.ErrClosed) {
				a.log.Debugw("Listener closed, accept loop stopping")
				return nil
			}
			a.log.Warnw("Accept error", "error", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		a.log.Debugw("Client connected", "remote", conn.RemoteAddr().String())
		a.launch(newTCPConnection(conn, a.maxLineBytes, a.writeTimeout))
	}
	return nil
}
