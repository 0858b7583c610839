package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"warn", "warn", slog.LevelWarn},
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"mixed case Trace", "Trace", LevelTrace},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	for _, ok := range []string{"", "info", "WARN", "debug", "trace"} {
		if !ValidLevel(ok) {
			t.Errorf("ValidLevel(%q) = false, want true", ok)
		}
	}
	if ValidLevel("verbose") {
		t.Error("ValidLevel(\"verbose\") = true, want false")
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"warn filters info", "warn", false, false},
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			hasDebug := strings.Contains(buf.String(), "debug message")
			if hasDebug != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", hasDebug, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			hasInfo := strings.Contains(buf.String(), "info message")
			if hasInfo != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", hasInfo, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(context.Background(), LevelTrace, "decision")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected TRACE label, got %q", buf.String())
	}
}

func TestNewDecisionLogger_InfoLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	dl := NewDecisionLogger(path, "info", "run-1")

	// At info level, decision logger should be nil
	if dl != nil {
		t.Error("expected nil DecisionLogger at info level")
	}

	// Nil logger should still be safe to use
	dl.Log(map[string]any{"event": "drop"})
	if dl.Count() != 0 {
		t.Error("nil logger should report zero events")
	}

	if _, err := os.Stat(path); err == nil {
		t.Error("decision trace should not exist at info level")
	}
}

func TestNewDecisionLogger_EmptyPath(t *testing.T) {
	if dl := NewDecisionLogger("", "debug", "run-1"); dl != nil {
		t.Error("expected nil DecisionLogger without a path")
	}
}

func TestNewDecisionLogger_DebugLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	dl := NewDecisionLogger(path, "debug", "run-1")
	defer dl.Close()

	dl.Log(map[string]any{"event": "jitter", "index": 3, "noise": 1.5})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read decision trace: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("failed to parse JSONL entry: %v", err)
	}

	if entry["event"] != "jitter" {
		t.Errorf("event = %v, want jitter", entry["event"])
	}
	if entry["noise"] != 1.5 {
		t.Errorf("noise = %v, want 1.5", entry["noise"])
	}
	if entry["run_id"] != "run-1" {
		t.Errorf("run_id = %v, want run-1", entry["run_id"])
	}
	if dl.Count() != 1 {
		t.Errorf("Count() = %d, want 1", dl.Count())
	}
}

func TestNewDecisionLogger_TruncatesPreviousTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	if err := os.WriteFile(path, []byte("{\"stale\":true}\n"), 0600); err != nil {
		t.Fatal(err)
	}

	dl := NewDecisionLogger(path, "trace", "run-2")
	dl.Log(map[string]any{"event": "first"})
	dl.Log(map[string]any{"event": "second"})
	dl.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read decision trace: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}
	if strings.Contains(string(data), "stale") {
		t.Error("previous trace content should be truncated")
	}
}

func TestDecisionLogger_DoesNotMutateCallerMap(t *testing.T) {
	dl := NewDecisionLogger(filepath.Join(t.TempDir(), "d.jsonl"), "debug", "run-1")
	defer dl.Close()

	event := map[string]any{"event": "drop"}
	dl.Log(event)

	if _, has := event["run_id"]; has {
		t.Error("Log() should not mutate caller's map, but 'run_id' was injected")
	}
}

func TestDecisionLogger_LogAfterClose(t *testing.T) {
	dl := NewDecisionLogger(filepath.Join(t.TempDir(), "d.jsonl"), "debug", "run-1")

	dl.Log(map[string]any{"event": "before_close"})
	dl.Close()

	// Should be a no-op, not panic or error
	dl.Log(map[string]any{"event": "after_close"})
	if dl.Count() != 1 {
		t.Errorf("Count() = %d, want 1", dl.Count())
	}
}

func TestNewDecisionLogger_CreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "dir", "decisions.jsonl")

	dl := NewDecisionLogger(path, "debug", "run-1")
	if dl == nil {
		t.Fatal("expected non-nil DecisionLogger when dir needs creation")
	}
	defer dl.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("decision trace should exist after dir creation: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
