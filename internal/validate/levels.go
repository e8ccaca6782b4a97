package validate

import (
	"errors"
	"strings"
)

// ErrInvalidLogLevel is returned by ParseLogLevel for unknown names.
var ErrInvalidLogLevel = errors.New("invalid log level (must be: trace, debug, info, warn, error)")

// LogLevel is a log level name accepted in configuration.
type LogLevel string

// Accepted log levels, matching zerolog's names.
const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ParseLogLevel normalises s (case and surrounding space) and checks it.
func ParseLogLevel(s string) (LogLevel, error) {
	switch l := LogLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return l, nil
	}
	return "", ErrInvalidLogLevel
}
