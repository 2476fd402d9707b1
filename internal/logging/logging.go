// Package logging carries a structured logger through context.Context.
package logging

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
)

// New creates a logger writing to w at level, with "HH:MM:SS.ms" timestamps.
func New(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

type ctxKey int

const loggerKey ctxKey = 0

// WithLogger returns a copy of ctx carrying l.
func WithLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger attached to ctx, or log.Default().
func FromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
