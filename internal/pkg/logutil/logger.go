package logutil

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// String returns the string representation of log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string ("debug", "info", ...) to a LogLevel.
// Unknown values map to INFO.
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       LogLevel
	Format      string // "json" or "text"
	ServiceName string
	Output      io.Writer // defaults to stdout
}

// Logger provides structured logging functionality
type Logger struct {
	config LogConfig
	logger *log.Logger
	exit   func(int)
}

// DefaultLogConfig provides sensible logging defaults
var DefaultLogConfig = LogConfig{
	Level:       INFO,
	Format:      "text",
	ServiceName: "deskchat",
}

// NewLogger creates a new logger with the specified configuration
func NewLogger(config LogConfig) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	return &Logger{
		config: config,
		logger: log.New(out, "", 0),
		exit:   os.Exit,
	}
}

// NewDefaultLogger creates a logger with default configuration
func NewDefaultLogger() *Logger {
	return NewLogger(DefaultLogConfig)
}

// NewNopLogger returns a logger that drops everything; handy in tests
func NewNopLogger() *Logger {
	cfg := DefaultLogConfig
	cfg.Output = io.Discard
	return NewLogger(cfg)
}

// Fields represents structured log fields
type Fields map[string]interface{}

type logMessage struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Service   string `json:"service"`
	Message   string `json:"message"`
	Fields    Fields `json:"fields,omitempty"`
}

func (l *Logger) shouldLog(level LogLevel) bool {
	return level >= l.config.Level
}

func (l *Logger) formatMessage(level LogLevel, msg string, fields Fields) string {
	timestamp := time.Now().Format(time.RFC3339)

	if l.config.Format == "json" {
		encoded, err := json.Marshal(logMessage{
			Timestamp: timestamp,
			Level:     level.String(),
			Service:   l.config.ServiceName,
			Message:   msg,
			Fields:    stringifyErrors(fields),
		})
		if err == nil {
			return string(encoded)
		}
		// Unencodable field values fall through to text output
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s: %s", timestamp, level.String(), l.config.ServiceName, msg)
	if len(fields) > 0 {
		b.WriteString(" |")
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	return b.String()
}

// stringifyErrors replaces error values, which marshal to {}, with their message
func stringifyErrors(fields Fields) Fields {
	if len(fields) == 0 {
		return nil
	}
	out := make(Fields, len(fields))
	for k, v := range fields {
		if err, ok := v.(error); ok {
			out[k] = err.Error()
			continue
		}
		out[k] = v
	}
	return out
}

func (l *Logger) log(level LogLevel, msg string, fields Fields) {
	if !l.shouldLog(level) {
		return
	}

	l.logger.Println(l.formatMessage(level, msg, fields))

	if level == FATAL {
		l.exit(1)
	}
}

func firstFields(fields []Fields) Fields {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Fields) { l.log(DEBUG, msg, firstFields(fields)) }

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Fields) { l.log(INFO, msg, firstFields(fields)) }

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Fields) { l.log(WARN, msg, firstFields(fields)) }

// Error logs an error message
func (l *Logger) Error(msg string, fields ...Fields) { l.log(ERROR, msg, firstFields(fields)) }

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, fields ...Fields) { l.log(FATAL, msg, firstFields(fields)) }

// WithFields returns a logger with pre-set fields
func (l *Logger) WithFields(fields Fields) *FieldLogger {
	return &FieldLogger{
		logger: l,
		fields: fields,
	}
}

// FieldLogger is a logger with pre-set fields
type FieldLogger struct {
	logger *Logger
	fields Fields
}

func (fl *FieldLogger) mergeFields(newFields Fields) Fields {
	if len(newFields) == 0 {
		return fl.fields
	}
	merged := make(Fields, len(fl.fields)+len(newFields))
	for k, v := range fl.fields {
		merged[k] = v
	}
	for k, v := range newFields {
		merged[k] = v
	}
	return merged
}

// WithFields returns a child logger carrying both field sets
func (fl *FieldLogger) WithFields(fields Fields) *FieldLogger {
	return &FieldLogger{
		logger: fl.logger,
		fields: fl.mergeFields(fields),
	}
}

// Debug logs a debug message with pre-set fields
func (fl *FieldLogger) Debug(msg string, fields ...Fields) {
	fl.logger.log(DEBUG, msg, fl.mergeFields(firstFields(fields)))
}

// Info logs an info message with pre-set fields
func (fl *FieldLogger) Info(msg string, fields ...Fields) {
	fl.logger.log(INFO, msg, fl.mergeFields(firstFields(fields)))
}

// Warn logs a warning message with pre-set fields
func (fl *FieldLogger) Warn(msg string, fields ...Fields) {
	fl.logger.log(WARN, msg, fl.mergeFields(firstFields(fields)))
}

// Error logs an error message with pre-set fields
func (fl *FieldLogger) Error(msg string, fields ...Fields) {
	fl.logger.log(ERROR, msg, fl.mergeFields(firstFields(fields)))
}

// Fatal logs a fatal message with pre-set fields and exits
func (fl *FieldLogger) Fatal(msg string, fields ...Fields) {
	fl.logger.log(FATAL, msg, fl.mergeFields(firstFields(fields)))
}

var (
	globalMu     sync.RWMutex
	globalLogger = NewDefaultLogger()
)

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// Global returns the process-wide logger
func Global() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Global logging functions
func Debug(msg string, fields ...Fields) { Global().Debug(msg, fields...) }

func Info(msg string, fields ...Fields) { Global().Info(msg, fields...) }

func Warn(msg string, fields ...Fields) { Global().Warn(msg, fields...) }

func Error(msg string, fields ...Fields) { Global().Error(msg, fields...) }

func Fatal(msg string, fields ...Fields) { Global().Fatal(msg, fields...) }
