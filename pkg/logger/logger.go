package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

type Logger = *slog.Logger

func NewLogger(debug bool) Logger {
	return newLogger(os.Stderr, debug)
}

func newLogger(w io.Writer, debug bool) Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	}))
}

// Discard returns a logger that drops every record. Used by tests.
func Discard() Logger {
	return slog.New(tint.NewHandler(io.Discard, nil))
}
