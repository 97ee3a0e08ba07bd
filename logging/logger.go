// Package logging provides a tiny abstraction over slog so engine components
// depend on a minimal interface (Logger) while deployments plug in any
// structured logger. HiveLogger adds session-scoped context and domain
// helpers for generation calls and callback delivery attempts.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger is the minimal logging interface consumed by engine components.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement Logger.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger { return &SlogAdapter{Logger: logger} }

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger { return NewSlogAdapter(slog.Default()) }

// NoOpLogger discards all log messages. Useful for tests.
type NoOpLogger struct{}

// Debug implements Logger.
func (NoOpLogger) Debug(string, ...any) {}

// Info implements Logger.
func (NoOpLogger) Info(string, ...any) {}

// Warn implements Logger.
func (NoOpLogger) Warn(string, ...any) {}

// Error implements Logger.
func (NoOpLogger) Error(string, ...any) {}

// Config configures construction of a HiveLogger.
type Config struct {
	Level     slog.Level
	Format    string // "json" or "text"
	Output    io.Writer
	Component string
	SessionID string
}

// DefaultConfig returns a baseline JSON info-level configuration.
func DefaultConfig() *Config {
	return &Config{Level: slog.LevelInfo, Format: "json", Output: os.Stdout}
}

// HiveLogger wraps slog.Logger adding contextual cloning helpers and domain
// convenience methods. Cheap to copy via With* methods.
type HiveLogger struct {
	logger    *slog.Logger
	component string
	sessionID string
}

// NewLogger builds a HiveLogger from a config (or defaults if nil).
func NewLogger(cfg *Config) *HiveLogger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	return &HiveLogger{logger: slog.New(handler), component: cfg.Component, sessionID: cfg.SessionID}
}

// WithComponent returns a copy tagged with the logical component
// (manager, dispatcher, orchestrator, ...).
func (l *HiveLogger) WithComponent(component string) *HiveLogger {
	nl := *l
	nl.component = component
	return &nl
}

// WithSession returns a copy tagged with a session identifier.
func (l *HiveLogger) WithSession(sessionID string) *HiveLogger {
	nl := *l
	nl.sessionID = sessionID
	return &nl
}

func (l *HiveLogger) attrs(extra []any) []any {
	args := make([]any, 0, len(extra)+4)
	if l.component != "" {
		args = append(args, "component", l.component)
	}
	if l.sessionID != "" {
		args = append(args, "session_id", l.sessionID)
	}
	return append(args, extra...)
}

// Debug implements Logger.
func (l *HiveLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, l.attrs(args)...) }

// Info implements Logger.
func (l *HiveLogger) Info(msg string, args ...any) { l.logger.Info(msg, l.attrs(args)...) }

// Warn implements Logger.
func (l *HiveLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, l.attrs(args)...) }

// Error implements Logger.
func (l *HiveLogger) Error(msg string, args ...any) { l.logger.Error(msg, l.attrs(args)...) }

// LogGenerationCall records latency and outcome of one reply-generation
// call. Failures log at warn: they are recovered locally and must stay
// invisible to the counterparty.
func (l *HiveLogger) LogGenerationCall(provider string, dur time.Duration, err error) {
	args := l.attrs([]any{"provider", provider, "duration", dur})
	if err != nil {
		args = append(args, "error", err.Error())
		l.logger.Warn("generation call failed", args...)
		return
	}
	l.logger.Debug("generation call completed", args...)
}

// LogDeliveryAttempt records one callback delivery attempt.
func (l *HiveLogger) LogDeliveryAttempt(sessionID string, attempt int, status int, err error) {
	args := l.attrs([]any{"report_session_id", sessionID, "attempt", attempt})
	if status != 0 {
		args = append(args, "status", status)
	}
	if err != nil {
		args = append(args, "error", err.Error())
		l.logger.Warn("report delivery attempt failed", args...)
		return
	}
	l.logger.Info("report delivered", args...)
}

// ErrorWithType logs an error with its concrete Go type, handy when the
// error taxonomy matters for triage.
func (l *HiveLogger) ErrorWithType(err error, msg string, args ...any) {
	all := l.attrs(args)
	all = append(all, "error", err.Error(), "error_type", fmt.Sprintf("%T", err))
	l.logger.Error(msg, all...)
}
