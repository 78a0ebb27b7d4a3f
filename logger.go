package livevoice

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	// LogLevelDebug logs everything including detailed debugging information
	LogLevelDebug LogLevel = iota
	// LogLevelInfo logs informational messages and above
	LogLevelInfo
	// LogLevelWarn logs warnings and above
	LogLevelWarn
	// LogLevelError logs only errors
	LogLevelError
	// LogLevelOff disables all logging
	LogLevelOff
)

// String returns the string representation of a LogLevel
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converts a string to LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return LogLevelDebug
	case "INFO":
		return LogLevelInfo
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	case "OFF":
		return LogLevelOff
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

// Logger provides structured logging with configurable levels.
// Events are short snake_case names; fields carry the details.
type Logger struct {
	zl zerolog.Logger
}

// NewLogger creates a console logger writing to stderr.
func NewLogger(level LogLevel) *Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMicro}
	return NewLoggerWithWriter(level, w)
}

// NewLoggerWithWriter creates a logger that writes JSON lines to w.
func NewLoggerWithWriter(level LogLevel, w io.Writer) *Logger {
	zl := zerolog.New(w).Level(level.zerolog()).With().Timestamp().Str("lib", "livevoice").Logger()
	return &Logger{zl: zl}
}

// NewLoggerFromEnv creates a logger with level from LIVEVOICE_LOG_LEVEL env var
func NewLoggerFromEnv() *Logger {
	return NewLogger(ParseLogLevel(os.Getenv("LIVEVOICE_LOG_LEVEL")))
}

// SetLevel updates the logger's minimum level
func (l *Logger) SetLevel(level LogLevel) {
	l.zl = l.zl.Level(level.zerolog())
}

// With returns a child logger that adds fields to every message.
func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{zl: l.zl.With().Fields(fields).Logger()}
}

// Debug logs debug-level messages
func (l *Logger) Debug(event string, fields map[string]any) {
	l.zl.Debug().Fields(fields).Msg(event)
}

// Info logs info-level messages
func (l *Logger) Info(event string, fields map[string]any) {
	l.zl.Info().Fields(fields).Msg(event)
}

// Warn logs warning-level messages
func (l *Logger) Warn(event string, fields map[string]any) {
	l.zl.Warn().Fields(fields).Msg(event)
}

// Error logs error-level messages
func (l *Logger) Error(event string, fields map[string]any) {
	l.zl.Error().Fields(fields).Msg(event)
}

// DefaultLogger is used by sessions created without WithLogger.
var DefaultLogger = NewLoggerFromEnv()
