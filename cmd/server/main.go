package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/linerelay/internal/logger"
	"github.com/Tyrowin/linerelay/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default: ./"+server.DefaultConfigFile+" if present)")
	port := flag.Int("port", 0, "Listen port (overrides config)")
	bind := flag.String("bind", "", "Bind address (overrides config)")
	flag.Parse()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "bind":
			cfg.BindAddress = *bind
		}
	})

	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.L()

	srv, err := server.New(*cfg, server.WithLogger(log))
	if err != nil {
		log.Errorw("Invalid configuration", "error", err)
		logger.Sync()
		os.Exit(1)
	}

	// console thread so the operator can broadcast or shut down
	go func() {
		if err := srv.Operator(os.Stdin).Run(); err != nil {
			log.Warnw("Server console error", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sig:
			log.Infow("Got stop signal", "signal", s.String())
			srv.Shutdown()
		case <-srv.Done():
		}
	}()

	if err := srv.Run(); err != nil {
		log.Errorw("Server exception", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}
