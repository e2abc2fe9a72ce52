// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the structured logger used throughout the
// netcontrol agent. It is a thin component/level wrapper around log/slog,
// not a replacement for it: the agent has no third-party structured-logging
// dependency, so none is introduced here either.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Level mirrors the verbosity levels the CLI exposes via -v/-vv/-vvv.
type Level int

const (
	LevelWarn Level = iota
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug, LevelTrace:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

// Config configures a Logger.
type Config struct {
	Output io.Writer
	Level  Level
	Silent bool
}

// DefaultConfig returns the default logging configuration: warnings and
// above, written to stderr.
func DefaultConfig() Config {
	return Config{
		Output: os.Stderr,
		Level:  LevelWarn,
	}
}

// Logger is the structured logger handed to every component.
type Logger struct {
	base *slog.Logger
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Silent {
		out = io.Discard
	}
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.Level.slogLevel()})
	return &Logger{base: slog.New(handler)}
}

// WithComponent returns a child Logger that tags every record with
// component=name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{base: l.base.With("component", name)}
}

// With returns a child Logger with the given key/value pairs attached to
// every subsequent record.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{base: l.base.With(kv...)}
}

func (l *Logger) Debug(msg string, kv ...any) { l.base.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.base.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.base.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.base.Error(msg, kv...) }

// Slog returns the underlying *slog.Logger, for code that must interoperate
// directly with log/slog (e.g. passing a logger into a library callback).
func (l *Logger) Slog() *slog.Logger { return l.base }

var defaultLogger atomic.Pointer[Logger]
var defaultOnce sync.Once

func defaultOrInit() *Logger {
	if cur := defaultLogger.Load(); cur != nil {
		return cur
	}
	defaultOnce.Do(func() {
		if defaultLogger.Load() == nil {
			defaultLogger.Store(New(DefaultConfig()))
		}
	})
	return defaultLogger.Load()
}

// SetDefault installs l as the process-wide default logger used by the
// package-level Debug/Info/Warn/Error functions.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

func Debug(msg string, kv ...any) { defaultOrInit().Debug(msg, kv...) }
func Info(msg string, kv ...any)  { defaultOrInit().Info(msg, kv...) }
func Warn(msg string, kv ...any)  { defaultOrInit().Warn(msg, kv...) }
func Error(msg string, kv ...any) { defaultOrInit().Error(msg, kv...) }

// ContextWithLogger attaches l to ctx so it can be recovered with
// FromContext by code that does not have a direct reference, such as a
// callback invoked by a third-party library (e.g. the nflog hook).
func ContextWithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

type loggerKey struct{}

// FromContext recovers a Logger attached with ContextWithLogger, falling
// back to the process default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok && l != nil {
		return l
	}
	return defaultOrInit()
}
