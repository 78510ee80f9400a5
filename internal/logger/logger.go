// Package logger owns the process-wide zap logger used by the relay binaries.
package logger

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.Mutex
	sugar *zap.SugaredLogger
)

// Init builds the global logger. Format "json" selects the production
// encoder; anything else uses the human readable console encoder.
func Init(level, format string) error {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}

	var cfg zap.Config
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	built, err := cfg.Build()
	if err != nil {
		return errors.Wrap(err, "build logger")
	}

	mu.Lock()
	defer mu.Unlock()
	sugar = built.Sugar()
	return nil
}

// L returns the global logger, falling back to a development logger when
// Init has not been called.
func L() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()

	if sugar == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			l = zap.NewNop()
		}
		sugar = l.Sugar()
	}
	return sugar
}

// Sync flushes buffered log entries.
func Sync() {
	mu.Lock()
	defer mu.Unlock()

	if sugar != nil {
		_ = sugar.Sync()
	}
}
