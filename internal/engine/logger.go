package engine

import (
	"fmt"
	"io"
	"os"

	"github.com/getsentry/sentry-go"
)

// Logger is the injected logging sink every subsystem constructor takes,
// instead of a package-level default the way the teacher's recovery and
// vacuum code calls fmt.Printf directly. Keeping the same terse
// Printf-style register, just threaded explicitly (section 9's "no
// hidden statics").
type Logger interface {
	Printf(format string, args ...any)
}

// WriterLogger is the default Logger: fmt.Fprintf onto an io.Writer,
// matching the teacher's register exactly (no structured fields, no
// levels) but no longer hard-wired to os.Stdout.
type WriterLogger struct {
	Out io.Writer
}

// NewWriterLogger builds a Logger writing to w, or os.Stdout if w is nil.
func NewWriterLogger(w io.Writer) *WriterLogger {
	if w == nil {
		w = os.Stdout
	}
	return &WriterLogger{Out: w}
}

func (l *WriterLogger) Printf(format string, args ...any) {
	fmt.Fprintf(l.Out, format+"\n", args...)
}

// AlertHub is the optional panic-mode alerting sink: a thin wrapper over
// an injected *sentry.Hub so the engine never depends on network
// delivery succeeding (section 2 of the expanded spec). A nil Hub
// silently no-ops.
type AlertHub struct {
	hub *sentry.Hub
}

// NewAlertHub wraps hub. Passing nil yields a no-op alerter.
func NewAlertHub(hub *sentry.Hub) *AlertHub {
	return &AlertHub{hub: hub}
}

// PanicMode reports a fatal engine condition (I/O during recovery, an
// internal invariant violation) to the configured sentry Hub, if any.
// This is fire-and-forget: the engine has already halted further writes
// by the time this is called, so delivery failures are not retried.
func (a *AlertHub) PanicMode(err error, reason string) {
	if a == nil || a.hub == nil {
		return
	}
	a.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("engine_state", "panic_mode")
		scope.SetExtra("reason", reason)
		a.hub.CaptureException(err)
	})
}
