package server

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// OperatorChannel reads operator commands: "quit" shuts the server down and
// any other line is broadcast to every client.
type OperatorChannel struct {
	in       io.Reader
	router   *Router
	shutdown func()
	log      *zap.SugaredLogger
}

// NewOperatorChannel creates an operator channel reading from in.
func NewOperatorChannel(in io.Reader, router *Router, shutdown func(), log *zap.SugaredLogger) *OperatorChannel {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &OperatorChannel{in: in, router: router, shutdown: shutdown, log: log}
}

// Run reads until "quit" or the end of input. End of input stops the
// channel but leaves the server running.
func (o *OperatorChannel) Run() error {
	scanner := bufio.NewScanner(o.in)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if isQuitCommand(line) {
			o.log.Infow("Shutdown requested by server operator")
			o.shutdown()
			return nil
		}

		delivered := o.router.Broadcast(ServerBroadcastPrefix + line)
		o.log.Infow("Operator broadcast sent", "clients", delivered)
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read operator input")
	}
	o.log.Infow("Operator input closed")
	return nil
}
