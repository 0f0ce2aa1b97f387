// Package logging wires slog up for the gearrent binaries. Every process
// (gearrentd, the CLI when verbose, the mirror) calls Setup once at start and
// logs through the returned logger.
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// renameAttr maps slog's default keys onto the field names the log pipeline
// indexes on: timestamp, severity, message.
func renameAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "timestamp"
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "message"
	}
	return attr
}

// Setup installs a JSON handler on stdout, tags every line with the service
// name (and env when non-empty), and returns the resulting logger. It also
// becomes the slog default, and the stdlib "log" package is redirected into
// the same handler so dependency log output stays structured.
func Setup(service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: renameAttr,
	})

	tags := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		tags = append(tags, slog.String("env", env))
	}

	args := make([]any, 0, len(tags))
	for _, tag := range tags {
		args = append(args, tag)
	}
	logger := slog.New(handler).With(args...)
	slog.SetDefault(logger)

	bridge := slog.NewLogLogger(handler.WithAttrs(tags), slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return logger
}
