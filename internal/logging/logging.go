package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a structured logger. Every method takes a message followed by
// alternating key/value pairs.
type Logger struct {
	zl zerolog.Logger
}

// NewLogger creates a Logger for the given environment. DEV gets debug level
// and human readable console output; everything else gets JSON at info level.
func NewLogger(environment string) *Logger {
	if strings.EqualFold(environment, "DEV") {
		return New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}, zerolog.DebugLevel)
	}
	return New(os.Stdout, zerolog.InfoLevel)
}

// New creates a Logger writing JSON lines to w.
func New(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger that always carries the given key/value pairs.
func (l *Logger) With(keyvals ...any) *Logger {
	return &Logger{zl: l.zl.With().Fields(keyvals).Logger()}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, keyvals ...any) {
	l.zl.Debug().Fields(keyvals).Msg(msg)
}

// Info logs an informational message.
func (l *Logger) Info(msg string, keyvals ...any) {
	l.zl.Info().Fields(keyvals).Msg(msg)
}

// Warn logs a warning.
func (l *Logger) Warn(msg string, keyvals ...any) {
	l.zl.Warn().Fields(keyvals).Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(msg string, keyvals ...any) {
	l.zl.Error().Fields(keyvals).Msg(msg)
}
