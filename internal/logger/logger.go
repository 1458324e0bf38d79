package logger

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Option configures the logger built by New.
type Option func(*options)

type options struct {
	debug   bool
	format  string
	quiet   bool
	logFile *os.File
}

// WithDebug enables debug-level logging.
func WithDebug() Option {
	return func(o *options) { o.debug = true }
}

// WithFormat sets the output format, "text" or "json".
func WithFormat(format string) Option {
	return func(o *options) { o.format = format }
}

// WithQuiet suppresses stderr output. Log file output is unaffected.
func WithQuiet() Option {
	return func(o *options) { o.quiet = true }
}

// WithLogFile adds a secondary output. The caller owns the file handle.
func WithLogFile(f *os.File) Option {
	return func(o *options) { o.logFile = f }
}

// New builds a slog.Logger from the given options. When both stderr and a
// log file are active, records are fanned out to both handlers.
func New(opts ...Option) *slog.Logger {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}

	var handlers []slog.Handler
	if !o.quiet {
		handlers = append(handlers, newHandler(os.Stderr, o.format, level))
	}
	if o.logFile != nil {
		handlers = append(handlers, newHandler(o.logFile, o.format, level))
	}

	switch len(handlers) {
	case 0:
		return slog.New(newHandler(io.Discard, o.format, level))
	case 1:
		return slog.New(handlers[0])
	default:
		return slog.New(slogmulti.Fanout(handlers...))
	}
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}
