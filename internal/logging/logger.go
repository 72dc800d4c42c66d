// Package logging is the structured logging layer of the client. Services
// depend on the Logger interface only; New picks a slog or zap backend from
// configuration and Nop serves tests.
package logging

import "context"

// Logger takes a message plus alternating key and value arguments:
//
//	log.Info(ctx, "materialized", "item", id, "bytes", n)
//
// Values logged under keys that look like credentials are masked.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that adds args to every entry.
	With(args ...any) Logger
}
