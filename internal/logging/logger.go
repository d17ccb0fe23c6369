package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// ParseLevel maps a config string onto a LogLevel, defaulting to INFO
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case LogLevelDebug:
		return LogLevelDebug
	case LogLevelWarn:
		return LogLevelWarn
	case LogLevelError:
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Options configures the shared log sink
type Options struct {
	Level   string
	File    string // Optional: plain-text copy of the console output
	NoColor bool
}

var (
	baseMu sync.RWMutex
	base   = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
)

// Configure installs the shared sink used by every component logger.
// The returned closer releases the log file, if any.
func Configure(opts Options) (io.Closer, error) {
	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339, NoColor: opts.NoColor},
	}

	var file *os.File
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		writers = append(writers, zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339, NoColor: true})
	}

	level := ParseLevel(opts.Level).zerolog()
	setBase(zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger())

	return closerFunc(func() error {
		if file == nil {
			return nil
		}
		// Later entries go to stderr only
		setBase(zerolog.New(writers[0]).Level(level).With().Timestamp().Logger())
		return file.Close()
	}), nil
}

// SetOutput routes all component loggers to w as JSON lines. Used by tests.
func SetOutput(w io.Writer, level LogLevel) {
	baseMu.Lock()
	defer baseMu.Unlock()
	base = zerolog.New(w).Level(level.zerolog()).With().Timestamp().Logger()
}

func setBase(logger zerolog.Logger) {
	baseMu.Lock()
	base = logger
	baseMu.Unlock()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Logger provides structured logging for a single component
type Logger struct {
	component string
}

// NewLogger creates a new logger for a specific component
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// log writes a log entry
func (l *Logger) log(level LogLevel, message string, err error, context map[string]interface{}) {
	baseMu.RLock()
	zl := base
	baseMu.RUnlock()

	var event *zerolog.Event
	switch level {
	case LogLevelDebug:
		event = zl.Debug()
	case LogLevelWarn:
		event = zl.Warn()
	case LogLevelError:
		event = zl.Error()
	default:
		event = zl.Info()
	}

	event = event.Str("component", l.component)
	if err != nil {
		event = event.Err(err)
	}
	if len(context) > 0 {
		event = event.Fields(context)
	}
	event.Msg(message)
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.log(LogLevelDebug, message, nil, nil)
}

// DebugWithContext logs a debug message with context
func (l *Logger) DebugWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelDebug, message, nil, context)
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.log(LogLevelInfo, message, nil, nil)
}

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelInfo, message, nil, context)
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.log(LogLevelWarn, message, nil, nil)
}

// WarnWithContext logs a warning message with context
func (l *Logger) WarnWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelWarn, message, nil, context)
}

// Error logs an error message
func (l *Logger) Error(message string, err error) {
	l.log(LogLevelError, message, err, nil)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(message string, err error, context map[string]interface{}) {
	l.log(LogLevelError, message, err, context)
}
