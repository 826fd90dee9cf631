package logutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(level LogLevel, format string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{
		Level:       level,
		Format:      format,
		ServiceName: "test",
		Output:      &buf,
	})
	return logger, &buf
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{FATAL, "FATAL"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := tt.level.String(); result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{" warn ", WARN},
		{"warning", WARN},
		{"error", ERROR},
		{"fatal", FATAL},
		{"verbose", INFO},
		{"", INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := ParseLevel(tt.input); result != tt.expected {
				t.Errorf("ParseLevel(%q) = %s, want %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewDefaultLogger(t *testing.T) {
	logger := NewDefaultLogger()

	if logger.config.Level != DefaultLogConfig.Level {
		t.Errorf("Expected default level %s, got %s", DefaultLogConfig.Level, logger.config.Level)
	}

	if logger.config.ServiceName != "deskchat" {
		t.Errorf("Expected service name deskchat, got %s", logger.config.ServiceName)
	}
}

func TestLogger_ShouldLog(t *testing.T) {
	tests := []struct {
		name        string
		configLevel LogLevel
		logLevel    LogLevel
		expected    bool
	}{
		{"debug_config_debug_log", DEBUG, DEBUG, true},
		{"info_config_debug_log", INFO, DEBUG, false},
		{"info_config_error_log", INFO, ERROR, true},
		{"error_config_warn_log", ERROR, WARN, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := newBufferLogger(tt.configLevel, "text")
			if result := logger.shouldLog(tt.logLevel); result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestLogger_FormatMessage_TextSortsFields(t *testing.T) {
	logger, _ := newBufferLogger(INFO, "text")

	result := logger.formatMessage(INFO, "saved", Fields{"store": "chat", "count": 3})

	if !strings.Contains(result, "[INFO] test: saved | count=3 store=chat") {
		t.Errorf("Unexpected text format: %s", result)
	}
}

func TestLogger_FormatMessage_JSON(t *testing.T) {
	logger, _ := newBufferLogger(INFO, "json")

	result := logger.formatMessage(WARN, `quote " inside`, Fields{
		"path":  "/tmp/x",
		"error": errors.New("disk full"),
	})

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(result), &decoded); err != nil {
		t.Fatalf("JSON output should be valid, got %v: %s", err, result)
	}

	if decoded["level"] != "WARN" {
		t.Errorf("Expected level WARN, got %v", decoded["level"])
	}
	if decoded["message"] != `quote " inside` {
		t.Errorf("Message should survive escaping, got %v", decoded["message"])
	}

	fields, ok := decoded["fields"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected fields object, got %v", decoded["fields"])
	}
	if fields["error"] != "disk full" {
		t.Errorf("Errors should be rendered by message, got %v", fields["error"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(WARN, "text")

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() > 0 {
		t.Error("DEBUG and INFO messages should be filtered out when level is WARN")
	}

	logger.Warn("warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Error("WARN message should pass through when level is WARN")
	}
}

func TestLogger_FatalCallsExit(t *testing.T) {
	logger, buf := newBufferLogger(INFO, "text")
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatal("cannot continue")

	if code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if !strings.Contains(buf.String(), "FATAL") {
		t.Errorf("Fatal should still be logged, got %s", buf.String())
	}
}

func TestFieldLogger_MergeFields(t *testing.T) {
	logger, buf := newBufferLogger(DEBUG, "text")

	storeLogger := logger.WithFields(Fields{"store": "config", "attempt": 1})
	storeLogger.Info("loaded", Fields{"attempt": 2, "path": "config.json"})

	output := buf.String()
	for _, want := range []string{"store=config", "attempt=2", "path=config.json"} {
		if !strings.Contains(output, want) {
			t.Errorf("Output should contain %q, got %s", want, output)
		}
	}
}

func TestFieldLogger_WithFieldsChains(t *testing.T) {
	logger, buf := newBufferLogger(DEBUG, "text")

	child := logger.WithFields(Fields{"store": "chat"}).WithFields(Fields{"op": "cleanup"})
	child.Debug("running")

	output := buf.String()
	if !strings.Contains(output, "op=cleanup") || !strings.Contains(output, "store=chat") {
		t.Errorf("Chained field logger should carry both fields, got %s", output)
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	previous := Global()
	defer SetGlobalLogger(previous)

	logger, buf := newBufferLogger(DEBUG, "text")
	SetGlobalLogger(logger)

	Info("global test message", Fields{"global": true})

	output := buf.String()
	if !strings.Contains(output, "global test message") || !strings.Contains(output, "global=true") {
		t.Errorf("Global logger should output message and fields, got %s", output)
	}
}
