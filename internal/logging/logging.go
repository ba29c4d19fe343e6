package logging

import (
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the log file written under the log directory
const FileName = "wfpmodule.slog"

// ParseLevel maps debug, info, warn and error to a slog level; anything
// else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a JSON logger that writes to console and to a size-rotated
// file in dir. The returned closer releases the file.
func New(level, dir string, console io.Writer) (*slog.Logger, io.Closer) {
	if dir == "" {
		dir = "."
	}
	w := &lumberjack.Logger{
		Filename:   filepath.Join(dir, FileName),
		MaxSize:    16, // MB
		MaxBackups: 3,
	}

	var out io.Writer = w
	if console != nil {
		out = io.MultiWriter(console, w)
	}

	l := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(level)}))
	l.Info("logging started",
		slog.String("file", w.Filename),
		slog.String("level", ParseLevel(level).String()),
		slog.String("GOOS", runtime.GOOS),
		slog.String("GOARCH", runtime.GOARCH))
	return l, w
}
