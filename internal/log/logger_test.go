package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestSetup(t *testing.T) {
	logger = nil
	once = *new(sync.Once)

	Setup("DEBUG", "json")
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "info", "json", true).Info("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json format should emit JSON, got %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, "info", "text", false).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text format should emit key=value, got %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, "info", "auto", true).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("auto on a terminal should emit text, got %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, "info", "auto", false).Info("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("auto off a terminal should emit JSON, got %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, "warn", "json", false).Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record should be filtered at warn level, got %q", buf.String())
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithComponent("router").Info("hello")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["component"] != "router" {
		t.Errorf("Expected component 'router', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}

func TestWithWorker(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithWorker(4242).Info("spawned")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["pid"] != float64(4242) {
		t.Errorf("Expected pid 4242, got %v", out["pid"])
	}
	if out["component"] != "worker" {
		t.Errorf("Expected component 'worker', got %v", out["component"])
	}
}

func TestWithRequest(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithRequest("req-123").Info("sent")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["request_id"] != "req-123" {
		t.Errorf("Expected request_id 'req-123', got %v", out["request_id"])
	}
}
