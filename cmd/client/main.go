package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/linerelay/internal/client"
	"github.com/Tyrowin/linerelay/internal/logger"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6300", "Relay server address")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	if err := logger.Init(*level, "console"); err != nil {
		logger.L().Fatalw("Logger error", "error", err)
	}
	defer logger.Sync()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("Connecting to server", "addr", *addr)
	if err := client.Run(ctx, *addr, os.Stdin, os.Stdout); err != nil {
		log.Errorw("Client error", "error", err)
		logger.Sync()
		os.Exit(1)
	}
	log.Infow("Disconnected from server.")
}
