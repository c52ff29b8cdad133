package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/config"
)

// ServiceName is attached to every record as the "service" attribute.
const ServiceName = "dlmsparser"

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Logger is a slog.Logger carrying the service and version attributes.
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of config.yaml.
//
// Parameters:
//   - cfg: level (debug|info|warn|error), format (json|text) and
//     output (stdout|stderr|discard)
//   - version: reported as the "version" attribute
//
// Returns:
//   - *Logger: ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, writerFor(cfg.Output))
}

// NewWithWriter is New with an explicit destination; cfg.Output is
// ignored. The CLI passes stderr so decoded output owns stdout.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	}))}
}

// Default is the logger used until config.yaml has been read: JSON on
// stderr at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stderr"}, "dev")
}

// With returns a child logger with extra attributes, e.g.
// logger.With("component", "ingest").
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// parseLevel is case-insensitive; unknown names mean info.
func parseLevel(name string) slog.Level {
	if lvl, ok := levels[strings.ToLower(name)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// writerFor maps the output setting to a destination. Anything
// unrecognised, including "", is stdout.
func writerFor(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr
	case "discard", "none":
		return io.Discard
	default:
		return os.Stdout
	}
}
