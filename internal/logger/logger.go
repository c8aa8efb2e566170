package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

var (
	sinkMu sync.Mutex
	sink   *os.File
)

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Anything else is treated as info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init replaces the global logger. The sink defaults to stdout and can be
// redirected with CHATHUB_LOG_SINK=file:/path/to/log.
func Init(level string) {
	var w io.Writer = os.Stdout
	if target := os.Getenv("CHATHUB_LOG_SINK"); strings.HasPrefix(target, "file:") {
		path := strings.TrimPrefix(target, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		} else {
			sinkMu.Lock()
			if sink != nil {
				_ = sink.Close()
			}
			sink = f
			sinkMu.Unlock()
			w = f
		}
	}
	InitWriter(w, level)
}

// InitWriter points the global logger at w. Tests use it to capture output.
func InitWriter(w io.Writer, level string) {
	Log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// Sync closes the file sink if one was opened.
func Sync() {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if sink != nil {
		_ = sink.Close()
		sink = nil
	}
}

// Debug logs with slog-style key/value pairs.
func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}
