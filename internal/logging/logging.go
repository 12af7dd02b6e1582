// Package logging is conclave's logging infrastructure, built on
// charmbracelet/log. It wraps the library to provide a centralized
// logger factory keyed off the LOG_LEVEL environment variable (spec.md
// §6), with component prefixes. All output goes to stderr; stdout is
// reserved for operation responses and status reports.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Level aliases for charmbracelet/log levels, re-exported so consumers
// do not need to import charmbracelet/log directly.
const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
)

// SetupFromEnv configures the global logging default from LOG_LEVEL
// (debug|info|warn|error, case-insensitive; unset or unrecognized
// defaults to info). Call once during process start, before New.
func SetupFromEnv() {
	Setup(os.Getenv("LOG_LEVEL"))
}

// Setup configures the global logging default from an explicit level
// string. Unrecognized values fall back to info.
func Setup(level string) {
	log.SetLevel(levelFromString(level))
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(true)
}

func levelFromString(s string) log.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// New creates a logger with the given component prefix. The returned
// logger inherits the default logger's level/output at creation time —
// call Setup/SetupFromEnv first.
func New(component string) *log.Logger {
	return log.WithPrefix(component)
}

// SetOutput overrides the output writer for the default logger. Useful
// in tests, where output is captured with a bytes.Buffer.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}
