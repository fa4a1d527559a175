package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	fileMaxSizeMB  = 10
	fileMaxBackups = 3
	fileMaxAgeDays = 30
)

// Format selects the console encoding.
type Format string

// Console formats.
const (
	// FormatAuto picks text on terminals and JSON
	// otherwise.
	FormatAuto Format = ""
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures New.
type Options struct {
	// Level is a slog level name ("debug", "info",
	// "warn", "error"). Empty means info.
	Level string
	// Format selects the console encoding.
	Format Format
	// File, when set, receives every record at debug
	// level in a size-rotated file.
	File string
	// Output is the console destination. Defaults to
	// os.Stderr.
	Output io.Writer
}

// New builds a logger from opts. The returned closer
// releases the log file, if any.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	const errCtx = "creating logger"

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var console slog.Handler

	switch opts.Format {
	case FormatText:
		console = slog.NewTextHandler(out, handlerOpts)
	case FormatJSON:
		console = slog.NewJSONHandler(out, handlerOpts)
	case FormatAuto:
		if isTerminal(out) {
			console = slog.NewTextHandler(out, handlerOpts)
		} else {
			console = slog.NewJSONHandler(out, handlerOpts)
		}
	default:
		return nil, nil, fmt.Errorf(
			"%s: unknown format %q", errCtx, opts.Format,
		)
	}

	if opts.File == "" {
		return slog.New(console), nopCloser{}, nil
	}

	if err := os.MkdirAll(
		filepath.Dir(opts.File), 0o750,
	); err != nil {
		return nil, nil, fmt.Errorf(
			"%s: log directory: %w", errCtx, err,
		)
	}

	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    fileMaxSizeMB,
		MaxBackups: fileMaxBackups,
		MaxAge:     fileMaxAgeDays,
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	return slog.New(&fanout{
		handlers: []slog.Handler{console, fileHandler},
	}), file, nil
}

// ParseLevel converts a level name to a slog.Level.
// Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("parsing log level: %w", err)
	}

	return level, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	fd := f.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// fanout sends each record to every handler enabled for
// its level.
type fanout struct {
	handlers []slog.Handler
}

func (h *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hd := range h.handlers {
		if hd.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (h *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error

	for _, hd := range h.handlers {
		if !hd.Enabled(ctx, r.Level) {
			continue
		}

		if err := hd.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (h *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hd := range h.handlers {
		next[i] = hd.WithAttrs(attrs)
	}

	return &fanout{handlers: next}
}

func (h *fanout) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hd := range h.handlers {
		next[i] = hd.WithGroup(name)
	}

	return &fanout{handlers: next}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
