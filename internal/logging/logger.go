// Package logging provides structured logging for the sfs CLI and transfer engine.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// EnvLogLevel overrides the configured level when set (trace, debug, info, warn, error).
const EnvLogLevel = "SFS_LOG_LEVEL"

// Logger wraps zerolog with console/JSON output selection.
type Logger struct {
	zlog    zerolog.Logger
	console bool      // human-readable console output
	output  io.Writer // current output writer
}

// NewLogger creates a logger writing to w at the given level.
// Terminal writers get zerolog's console format, everything else gets JSON lines.
func NewLogger(w io.Writer, level zerolog.Level) *Logger {
	l := &Logger{console: isTerminal(w)}
	l.build(w, level)
	return l
}

// NewDefaultCLILogger creates a default CLI logger.
// Logs go to stderr so stdout stays clean for `sfs download -o -` style pipes.
func NewDefaultCLILogger() *Logger {
	level := zerolog.InfoLevel
	if env := os.Getenv(EnvLogLevel); env != "" {
		level = ParseLevel(env, level)
	}
	return NewLogger(os.Stderr, level)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop(), output: io.Discard}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

func (l *Logger) build(w io.Writer, level zerolog.Level) {
	l.output = w
	if l.console {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05",
		}
	}
	l.zlog = zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// ParseLevel parses a level name, returning def when s is not a known level.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return def
	}
	return level
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger context with additional fields.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// Child returns a logger carrying the given key/value string pairs.
func (l *Logger) Child(fields map[string]string) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Str(k, v)
	}
	return &Logger{zlog: ctx.Logger(), console: l.console, output: l.output}
}

// SetLevel changes the minimum level of this logger.
func (l *Logger) SetLevel(level zerolog.Level) {
	l.zlog = l.zlog.Level(level)
}

// Level returns the minimum level of this logger.
func (l *Logger) Level() zerolog.Level {
	return l.zlog.GetLevel()
}

// SetOutput changes the output writer for the logger.
// This is useful for redirecting logs through progress bars.
func (l *Logger) SetOutput(w io.Writer) {
	l.build(w, l.zlog.GetLevel())
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// Debugf logs a debug message with printf-style formatting.
// This is only shown when debug/verbose mode is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Errorf logs an error message with printf-style formatting.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
