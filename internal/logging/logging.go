// Package logging provides the context-scoped structured logger shared by
// every component.
package logging

import (
	"context"
	"os"

	charm "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattn/go-isatty"
)

type ctxKey struct{}

// _default is the process-wide logger used when no request-scoped logger
// has been attached to the context.
var _default = charm.NewWithOptions(os.Stderr, charm.Options{
	ReportTimestamp: true,
	Level:           charm.InfoLevel,
})

func init() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		_default.SetColorProfile(0)
	}
}

// Default returns the process-wide logger. Use SetLevel on it to change
// verbosity.
func Default() *charm.Logger { return _default }

// With returns a context carrying l as the logger Log(ctx) will return.
func With(ctx context.Context, l *charm.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// WithRequestID tags ctx with id, the same chi request-ID convention the
// rest of the stack uses, so Log(ctx) can thread it through every log line
// for a given topic or book without callers repeating it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, middleware.RequestIDKey, id)
}

// Log returns the logger attached to ctx, tagged with its request ID if
// one was set via WithRequestID, or the process default.
func Log(ctx context.Context) *charm.Logger {
	l := _default
	if fromCtx, ok := ctx.Value(ctxKey{}).(*charm.Logger); ok && fromCtx != nil {
		l = fromCtx
	}
	if id, ok := ctx.Value(middleware.RequestIDKey).(string); ok && id != "" {
		return l.With("req_id", id)
	}
	return l
}
