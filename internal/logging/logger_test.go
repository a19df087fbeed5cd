package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"bogus", LevelInfo},
		{"  Error  ", LevelError},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLoggerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{out: &buf, minLevel: LevelDebug, component: "store"}

	l.Info("opened database", map[string]interface{}{"path": "/tmp/possync.db"})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry.Level != "INFO" {
		t.Errorf("Level = %q, want INFO", entry.Level)
	}
	if entry.Component != "store" {
		t.Errorf("Component = %q, want store", entry.Component)
	}
	if entry.Message != "opened database" {
		t.Errorf("Message = %q", entry.Message)
	}
	if entry.Context["path"] != "/tmp/possync.db" {
		t.Errorf("Context = %v", entry.Context)
	}
	if entry.Timestamp == "" {
		t.Error("missing timestamp")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{out: &buf, minLevel: LevelWarn}

	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("kept")
	l.Error("kept", errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
}

func TestLoggerErrorField(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{out: &buf, minLevel: LevelDebug}

	l.Error("sync pass failed", errors.New("connection refused"))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry.Error != "connection refused" {
		t.Errorf("Error field = %q", entry.Error)
	}
}

func TestMergeContext(t *testing.T) {
	merged := mergeContext(
		map[string]interface{}{"a": 1, "b": 1},
		map[string]interface{}{"b": 2},
	)
	if merged["a"] != 1 || merged["b"] != 2 {
		t.Errorf("mergeContext = %v", merged)
	}
	if mergeContext() != nil {
		t.Error("mergeContext() with no maps should be nil")
	}
}

func TestNamedInheritsGlobal(t *testing.T) {
	l := Named("engine")
	if l.component != "engine" {
		t.Errorf("component = %q", l.component)
	}
}
