package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/config"
)

func jsonConfig(level string) config.LoggingConfig {
	return config.LoggingConfig{Level: level, Format: "json"}
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output %q: %v", buf.String(), err)
	}
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestLogger_DefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(jsonConfig("info"), "1.2.3", &buf)
	logger.Info("proxy started", "pbx", "pbx.local:5038")

	entry := decode(t, &buf)
	if entry["service"] != ServiceName {
		t.Errorf("service = %v, want %q", entry["service"], ServiceName)
	}
	if entry["version"] != "1.2.3" {
		t.Errorf("version = %v, want %q", entry["version"], "1.2.3")
	}
	if entry["msg"] != "proxy started" {
		t.Errorf("msg = %v, want %q", entry["msg"], "proxy started")
	}
	if entry["pbx"] != "pbx.local:5038" {
		t.Errorf("pbx = %v, want %q", entry["pbx"], "pbx.local:5038")
	}
}

func TestLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(jsonConfig("info"), "test", &buf)
	logger.Info("login", "username", "cti", "Secret", "hunter2", "token", "abc")

	if strings.Contains(buf.String(), "hunter2") || strings.Contains(buf.String(), "abc") {
		t.Fatalf("output leaked a secret: %s", buf.String())
	}
	entry := decode(t, &buf)
	if entry["username"] != "cti" {
		t.Errorf("username = %v, want %q", entry["username"], "cti")
	}
	if entry["Secret"] != redacted {
		t.Errorf("Secret = %v, want %q", entry["Secret"], redacted)
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(jsonConfig("warn"), "test", &buf)
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %s", buf.String())
	}
	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn record missing: %s", buf.String())
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(jsonConfig("info"), "test", &buf)
	child := logger.Component("ami")
	if child == logger {
		t.Fatal("Component() returned the parent logger")
	}
	child.Info("connected")

	entry := decode(t, &buf)
	if entry["component"] != "ami" {
		t.Errorf("component = %v, want %q", entry["component"], "ami")
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "text"}, "test", &buf)
	logger.Debug("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %q, want msg=hello", buf.String())
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("expected non-nil default logger")
	}
}
