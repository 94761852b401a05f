package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) charm() charmlog.Level {
	switch l {
	case DEBUG:
		return charmlog.DebugLevel
	case WARN:
		return charmlog.WarnLevel
	case ERROR:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// Format selects the line encoding of log entries.
type Format string

const (
	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatLogfmt Format = "logfmt"
)

// ValidFormat reports whether f names a known format.
func ValidFormat(f string) bool {
	switch Format(strings.ToLower(f)) {
	case FormatText, FormatJSON, FormatLogfmt, "":
		return true
	}
	return false
}

// Fields are structured key/value pairs attached to a log entry.
type Fields map[string]interface{}

// DefaultMaxFileSize is the size at which an existing log file is rotated on open.
const DefaultMaxFileSize int64 = 10 << 20

// Logger is the wrapper's operational log. It never carries relayed compiler output.
type Logger struct {
	base    *charmlog.Logger
	level   Level
	logFile *os.File
}

// NewLogger creates a logger writing to w.
func NewLogger(w io.Writer, level Level, format Format) *Logger {
	base := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           level.charm(),
		Prefix:          "ccwrap",
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       formatter(format),
	})
	return &Logger{base: base, level: level}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewLogger(io.Discard, ERROR, FormatText)
}

// NewFileLogger creates a logger that appends to path. The parent directory is
// created if needed and a file larger than maxSize is rotated first.
func NewFileLogger(path string, level Level, format Format, maxSize int64) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory for %s: %w", path, err)
	}

	// Rotation races between concurrent wrappers are harmless: the loser
	// simply appends to whichever file now holds the name.
	_ = RotateIfNeeded(path, maxSize)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	l := NewLogger(f, level, format)
	l.logFile = f
	return l, nil
}

// RotateIfNeeded renames path to a timestamped backup when it exceeds maxSize bytes.
func RotateIfNeeded(path string, maxSize int64) error {
	if maxSize <= 0 {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() <= maxSize {
		return nil
	}
	backup := path + "." + time.Now().Format("20060102-150405")
	return os.Rename(path, backup)
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...Fields) {
	l.base.Debug(message, keyvals(fields)...)
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...Fields) {
	l.base.Info(message, keyvals(fields)...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...Fields) {
	l.base.Warn(message, keyvals(fields)...)
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...Fields) {
	l.base.Error(message, keyvals(fields)...)
}

// Level returns the minimum level this logger emits.
func (l *Logger) Level() Level {
	return l.level
}

// WithField returns a child logger that adds key to every entry.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		base:  l.base.With(key, value),
		level: l.level,
	}
}

// Close closes the log file if opened
func (l *Logger) Close() error {
	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}

// ParseLevel parses a log level string. Unknown values fall back to INFO.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func formatter(f Format) charmlog.Formatter {
	switch Format(strings.ToLower(string(f))) {
	case FormatJSON:
		return charmlog.JSONFormatter
	case FormatLogfmt:
		return charmlog.LogfmtFormatter
	default:
		return charmlog.TextFormatter
	}
}

// keyvals flattens field maps into sorted key/value pairs so output is stable.
func keyvals(fields []Fields) []interface{} {
	if len(fields) == 0 {
		return nil
	}
	merged := make(Fields)
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		kv = append(kv, k, merged[k])
	}
	return kv
}
