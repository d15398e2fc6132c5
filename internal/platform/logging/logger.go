// Package logging adapts zerolog to the txoutbox.Logger contract.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lattice-systems/txoutbox"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Level       string
	Console     bool
	Output      io.Writer
}

// Logger wraps a zerolog.Logger to satisfy txoutbox.Logger.
type Logger struct {
	base zerolog.Logger
}

var _ txoutbox.Logger = (*Logger)(nil)

// New builds a zerolog-backed logger for the given service.
func New(opts Options) *Logger {
	var output io.Writer = opts.Output
	if output == nil {
		output = os.Stdout
	}
	if opts.Console {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	base := zerolog.New(output).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger().
		Level(parseLevel(opts.Level))

	return &Logger{base: base}
}

func parseLevel(value string) zerolog.Level {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return zerolog.InfoLevel
	}
	if lvl, err := zerolog.ParseLevel(trimmed); err == nil {
		return lvl
	}

	return zerolog.InfoLevel
}

// Debug implements txoutbox.Logger.
func (l *Logger) Debug(msg string, args ...any) {
	l.event(l.base.Debug(), args).Msg(msg)
}

// Info implements txoutbox.Logger.
func (l *Logger) Info(msg string, args ...any) {
	l.event(l.base.Info(), args).Msg(msg)
}

// Warn implements txoutbox.Logger.
func (l *Logger) Warn(msg string, args ...any) {
	l.event(l.base.Warn(), args).Msg(msg)
}

// Error implements txoutbox.Logger.
func (l *Logger) Error(msg string, args ...any) {
	l.event(l.base.Error(), args).Msg(msg)
}

// With returns a logger with a bound field, for use at service construction time.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{base: l.base.With().Interface(key, value).Logger()}
}

// event folds alternating key/value pairs (slog-style) onto a zerolog event.
func (l *Logger) event(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "arg"
		}
		var val any = "<missing>"
		if i+1 < len(args) {
			val = args[i+1]
		}
		if err, ok := val.(error); ok {
			e = e.AnErr(key, err)

			continue
		}
		e = e.Interface(key, val)
	}

	return e
}
