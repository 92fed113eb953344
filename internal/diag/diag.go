// Package diag provides structured stderr diagnostics for the engine,
// independent of the user-facing [OK]/[FAIL]/[INFO]/[WARN] stdout convention
// that every CLI subcommand writes directly. diag is for internal timing,
// subprocess, and I/O diagnostics that aid debugging a CI run after the fact.
package diag

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the fields every engine component
// wants attached: run_id and identity_id.
type Logger struct {
	base zerolog.Logger
}

// New creates a Logger writing to w (typically os.Stderr). verbose controls
// whether debug-level events are emitted; info/warn/error are always emitted.
func New(w io.Writer, verbose bool) *Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	base := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &Logger{base: base}
}

// Default returns a Logger writing to os.Stderr at info level.
func Default() *Logger {
	return New(os.Stderr, false)
}

// With returns a derived Logger carrying run_id and identity_id fields.
func (l *Logger) With(runID, identityID string) *Logger {
	ctx := l.base.With()
	if runID != "" {
		ctx = ctx.Str("run_id", runID)
	}
	if identityID != "" {
		ctx = ctx.Str("identity_id", identityID)
	}
	return &Logger{base: ctx.Logger()}
}

// Debug logs a debug-level diagnostic event.
func (l *Logger) Debug(msg string, fields map[string]any) {
	l.event(l.base.Debug(), msg, fields)
}

// Info logs an info-level diagnostic event.
func (l *Logger) Info(msg string, fields map[string]any) {
	l.event(l.base.Info(), msg, fields)
}

// Warn logs a warn-level diagnostic event.
func (l *Logger) Warn(msg string, fields map[string]any) {
	l.event(l.base.Warn(), msg, fields)
}

// Error logs an error-level diagnostic event.
func (l *Logger) Error(err error, msg string, fields map[string]any) {
	ev := l.base.Error().Err(err)
	l.event(ev, msg, fields)
}

func (l *Logger) event(ev *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
