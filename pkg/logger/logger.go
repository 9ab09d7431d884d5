// Package logger provides the contextual, component-tagged logging calls
// used throughout boxbot (InfoCF/WarnCF/ErrorCF/DebugCF). It wraps log/slog
// rather than pulling in a third-party logging library.
package logger

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

var (
	mu sync.RWMutex
	handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	base = slog.New(handler)
)

// Configure swaps the output handler, e.g. to write JSON to a rotating file.
func Configure(h slog.Handler) {
	mu.Lock()
	defer mu.Unlock()
	handler = h
	base = slog.New(h)
}

func logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func fieldsToArgs(fields map[string]interface{}) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

// InfoCF logs at Info level, tagged with a component and structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	args := append([]any{"component", component}, fieldsToArgs(fields)...)
	logger().Info(msg, args...)
}

// WarnCF logs at Warn level, tagged with a component and structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	args := append([]any{"component", component}, fieldsToArgs(fields)...)
	logger().Warn(msg, args...)
}

// ErrorCF logs at Error level, tagged with a component and structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	args := append([]any{"component", component}, fieldsToArgs(fields)...)
	logger().Error(msg, args...)
}

// DebugCF logs at Debug level, tagged with a component and structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	args := append([]any{"component", component}, fieldsToArgs(fields)...)
	logger().Debug(msg, args...)
}

// Info logs a plain message at Info level (no component tag).
func Info(msg string) { logger().Info(msg) }

// Warn logs a plain message at Warn level.
func Warn(msg string) { logger().Warn(msg) }

// Error logs a plain message at Error level.
func Error(msg string) { logger().Error(msg) }

// Context returns ctx unchanged; it attaches no logger to it.
func Context(ctx context.Context) context.Context { return ctx }
