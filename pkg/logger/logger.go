// Package logger builds the application-wide slog logger on top of
// charmbracelet/log, which doubles as the slog handler.
package logger

import (
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// New returns a structured logger writing to stderr. Debug mode lowers the
// level and reports caller locations.
func New(debug bool) *slog.Logger {
	level := charmlog.InfoLevel
	if debug {
		level = charmlog.DebugLevel
	}

	handler := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Level:           level,
		ReportTimestamp: true,
		ReportCaller:    debug,
		TimeFormat:      time.RFC3339,
	})

	return slog.New(handler)
}
