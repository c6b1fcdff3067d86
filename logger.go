package vdec

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine,
// including the decode goroutines and upload tasks of open decoders.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for vdec and all its sub-packages.
// By default, vdec produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use and takes effect for decoders that
// are already open. Pass nil to disable logging.
//
// Log levels used by vdec:
//   - [slog.LevelDebug]: decode loop and pacing details
//   - [slog.LevelInfo]: lifecycle events (play, stop, seek, hardware frames)
//   - [slog.LevelWarn]: trampled frames, unknown color spaces
//   - [slog.LevelError]: failed transfers, read and decode errors
//
// Every record of a decoder carries a "session" attribute.
//
// Example:
//
//	vdec.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger used by vdec.
// Sub-packages (integration/vdeccanvas, cmd/vdec) call this to share the
// same logger configuration.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// forwardHandler hands every record to the logger that is current when
// the record is emitted.
type forwardHandler struct {
	wrap func(slog.Handler) slog.Handler
}

func (h forwardHandler) target() slog.Handler {
	base := loggerPtr.Load().Handler()
	if h.wrap == nil {
		return base
	}
	return h.wrap(base)
}

func (h forwardHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return loggerPtr.Load().Handler().Enabled(ctx, level)
}

func (h forwardHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.target().Handle(ctx, r)
}

func (h forwardHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.then(func(b slog.Handler) slog.Handler { return b.WithAttrs(attrs) })
}

func (h forwardHandler) WithGroup(name string) slog.Handler {
	return h.then(func(b slog.Handler) slog.Handler { return b.WithGroup(name) })
}

func (h forwardHandler) then(next func(slog.Handler) slog.Handler) forwardHandler {
	prev := h.wrap
	if prev == nil {
		return forwardHandler{wrap: next}
	}
	return forwardHandler{wrap: func(b slog.Handler) slog.Handler { return next(prev(b)) }}
}

// sessionLogger returns a logger for one decoder that follows SetLogger.
func sessionLogger(session string) *slog.Logger {
	return slog.New(forwardHandler{}).With("session", session)
}

// loggerSetter is implemented by collaborators that accept a logger,
// such as mixer.Software.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes l to v if it accepts a logger.
func propagateLogger(v any, l *slog.Logger) {
	if ls, ok := v.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
