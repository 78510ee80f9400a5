// Package client is the interactive relay client: console lines go to the
// server and server lines are printed.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/pkg/errors"
)

// Run connects to addr, sends every line read from in, and writes every line
// received to out. It returns nil once the server closes the connection or
// ctx is cancelled.
func Run(ctx context.Context, addr string, in io.Reader, out io.Writer) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "dial %s", addr)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	// The input side may stay blocked on the console after the server hangs
	// up; it exits on its next failed write.
	go forwardInput(in, conn)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if _, err := fmt.Fprintln(out, scanner.Text()); err != nil {
			return errors.Wrap(err, "write output")
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil && !isClosedError(err) {
		return errors.Wrap(err, "read from server")
	}
	return nil
}

func forwardInput(in io.Reader, conn net.Conn) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if _, err := io.WriteString(conn, scanner.Text()+"\n"); err != nil {
			return
		}
	}
}

func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "connection reset by peer")
}
