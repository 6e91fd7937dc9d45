// Package logging configures the process-wide structured logger.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once   sync.Once
	global *zap.SugaredLogger
)

// Configure builds the process-wide logger at the given level
// ("debug", "info", "warn", "error"; anything else falls back to info).
// Safe to call multiple times; only the first call takes effect.
func Configure(level string) {
	once.Do(func() {
		global = build(level)
	})
}

func build(level string) *zap.SugaredLogger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Fall back to a minimal logger rather than panic; this only
		// fails on malformed encoder config, which we control above.
		logger = zap.NewNop()
	}
	return logger.Sugar()
}

// For returns a logger scoped to the named component (indexer, fetcher,
// dunes, drc20, api, ...). Configure must have been called first; if not,
// a default info-level logger is lazily created so packages never see a
// nil logger.
func For(component string) *zap.SugaredLogger {
	if global == nil {
		Configure("info")
	}
	return global.Named(component)
}

// Sync flushes any buffered log entries. Call during shutdown.
func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}
