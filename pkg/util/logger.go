package util

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

var (
	// Log levels
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"

	// Output formats
	FormatText = "text"
	FormatJSON = "json"

	level  = new(slog.LevelVar)
	logger atomic.Pointer[slog.Logger]
)

func init() {
	logger.Store(newLogger(os.Stdout, FormatText))
}

// SetLogLevel sets the current logging level
func SetLogLevel(name string) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case LevelDebug:
		level.Set(slog.LevelDebug)
	case LevelInfo:
		level.Set(slog.LevelInfo)
	case LevelWarn, "WARNING":
		level.Set(slog.LevelWarn)
	case LevelError:
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
		Warn("Invalid log level: %s, using INFO", name)
	}
}

// SetOutput replaces the log destination and format ("text" or "json").
func SetOutput(w io.Writer, format string) {
	logger.Store(newLogger(w, format))
}

// Logger returns the underlying structured logger.
func Logger() *slog.Logger {
	return logger.Load()
}

func newLogger(w io.Writer, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, AddSource: true}
	var handler slog.Handler
	if strings.EqualFold(format, FormatJSON) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// logWithLevel logs a message with the specified level, attributing it to the
// caller of the exported helper rather than to this file.
func logWithLevel(lvl slog.Level, format string, args ...interface{}) {
	l := logger.Load()
	ctx := context.Background()
	if !l.Enabled(ctx, lvl) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // skip Callers, logWithLevel, and the log function
	r := slog.NewRecord(time.Now(), lvl, fmt.Sprintf(format, args...), pcs[0])
	_ = l.Handler().Handle(ctx, r)
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	logWithLevel(slog.LevelDebug, format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	logWithLevel(slog.LevelInfo, format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	logWithLevel(slog.LevelWarn, format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	logWithLevel(slog.LevelError, format, args...)
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	logWithLevel(slog.LevelError, format, args...)
	os.Exit(1)
}

// Init configures level and format, falling back to LOG_LEVEL and
// LOG_FORMAT from the environment when the arguments are empty.
func Init(levelName, format string) {
	if levelName == "" {
		levelName = os.Getenv("LOG_LEVEL")
	}
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	if levelName != "" {
		SetLogLevel(levelName)
	}
	SetOutput(os.Stdout, format)

	Info("Logger initialized with level: %s", level.Level())
}
