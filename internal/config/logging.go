package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mrz1836/tether/internal/fileutil"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelDebug
)

// LogWriter is the logging surface components depend on.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// ParseLogLevel parses a log level string.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogLevelOff
	case "error":
		return LogLevelError
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelOff:
		return "off"
	case LogLevelError:
		return "error"
	case LogLevelDebug:
		return "debug"
	default:
		return "error"
	}
}

// Logger writes leveled lines to a file. Components get a scoped view
// through Named so each line says where it came from.
type Logger struct {
	sink  *logSink
	scope string
}

type logSink struct {
	mu       sync.Mutex
	level    LogLevel
	out      io.Writer
	closer   io.Closer
	filePath string
}

// NewLogger creates a new logger writing to filePath.
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	sink := &logSink{level: level, filePath: filePath}
	logger := &Logger{sink: sink}

	if level == LogLevelOff || filePath == "" {
		return logger, nil
	}

	filePath = fileutil.ExpandHome(filePath)
	if err := os.MkdirAll(filepath.Dir(filePath), fileutil.DirPerm); err != nil {
		return nil, err
	}

	// #nosec G304 -- log file path is from validated config
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	sink.out = f
	sink.closer = f
	sink.filePath = filePath

	return logger, nil
}

// NewWriterLogger creates a logger writing to w. Used by tests and the shell.
func NewWriterLogger(level LogLevel, w io.Writer) *Logger {
	return &Logger{sink: &logSink{level: level, out: w}}
}

// Named returns a logger sharing this logger's output that prefixes each line with scope.
func (l *Logger) Named(scope string) *Logger {
	if l.scope != "" {
		scope = l.scope + "." + scope
	}
	return &Logger{sink: l.sink, scope: scope}
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.closer != nil {
		err := l.sink.closer.Close()
		l.sink.closer = nil
		l.sink.out = nil
		return err
	}
	return nil
}

// SetLevel changes the log level.
func (l *Logger) SetLevel(level LogLevel) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.level
}

// Path returns the resolved log file path, if any.
func (l *Logger) Path() string {
	return l.sink.filePath
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LogLevelDebug, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LogLevelError, format, args...)
}

func (l *Logger) log(level LogLevel, format string, args ...any) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.level == LogLevelOff || level > l.sink.level || l.sink.out == nil {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	levelStr := strings.ToUpper(level.String())
	msg := fmt.Sprintf(format, args...)

	if l.scope != "" {
		_, _ = fmt.Fprintf(l.sink.out, "%s [%s] %s: %s\n", timestamp, levelStr, l.scope, msg)
		return
	}
	_, _ = fmt.Fprintf(l.sink.out, "%s [%s] %s\n", timestamp, levelStr, msg)
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return &Logger{sink: &logSink{level: LogLevelOff}}
}
