// Package logging builds the shared zap.SugaredLogger every long-lived
// component (Dispatcher, Parallel Executor, Planner, Vault, ...) takes via
// constructor injection. Components default to a no-op logger on their own;
// this package is only needed by the process entrypoint that wants real
// output.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the zap encoder.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Options configures New. Level accepts any value zapcore.Level.UnmarshalText
// understands ("debug", "info", "warn", "error", ...).
type Options struct {
	Level  string
	Format Format
}

// New builds a *zap.Logger at the requested level and encoding. An empty
// Level defaults to "info"; an empty Format defaults to FormatJSON.
func New(opts Options) (*zap.Logger, error) {
	level := opts.Level
	if level == "" {
		level = "info"
	}
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("logging: invalid level %q: %w", level, err)
	}

	var cfg zap.Config
	if opts.Format == FormatConsole {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build: %w", err)
	}
	return logger, nil
}

// Sugared is a convenience wrapper returning New(opts).Sugar() directly,
// matching the *zap.SugaredLogger signature every component's WithLogger
// option expects.
func Sugared(opts Options) (*zap.SugaredLogger, error) {
	logger, err := New(opts)
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Nop returns the no-op logger components fall back to when no logger is
// supplied, exposed here so callers can be explicit about requesting it
// instead of constructing it ad hoc.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
