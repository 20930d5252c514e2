package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/GamesCrafters/gamesplane/internal/dispatcher"
	"github.com/rs/zerolog"
)

// Compile-time interface check
var _ dispatcher.Logger = (*DispatcherLogger)(nil)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	return logEntry
}

func TestDispatcherLogger_Debug(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	dl.Debug("test message", "key1", "value1", "key2", 42)

	logEntry := decode(t, &buf)
	if logEntry["level"] != "debug" {
		t.Errorf("expected level 'debug', got %v", logEntry["level"])
	}
	if logEntry["message"] != "test message" {
		t.Errorf("expected message 'test message', got %v", logEntry["message"])
	}
	if logEntry["key1"] != "value1" {
		t.Errorf("expected key1='value1', got %v", logEntry["key1"])
	}
	if logEntry["key2"] != float64(42) { // JSON numbers are float64
		t.Errorf("expected key2=42, got %v", logEntry["key2"])
	}
}

func TestDispatcherLogger_Info(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Info("info message", "status", "ok")

	logEntry := decode(t, &buf)
	if logEntry["level"] != "info" {
		t.Errorf("expected level 'info', got %v", logEntry["level"])
	}
	if logEntry["status"] != "ok" {
		t.Errorf("expected status='ok', got %v", logEntry["status"])
	}
}

func TestDispatcherLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Error("job failed", "key", "1_X--O", "error", errors.New("no overlay for state"))

	logEntry := decode(t, &buf)
	if logEntry["level"] != "error" {
		t.Errorf("expected level 'error', got %v", logEntry["level"])
	}
	if logEntry["key"] != "1_X--O" {
		t.Errorf("expected key='1_X--O', got %v", logEntry["key"])
	}
	if logEntry["error"] != "no overlay for state" {
		t.Errorf("expected error text, got %v", logEntry["error"])
	}
}

func TestDispatcherLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	dl.Debug("filtered")

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestDispatcherLogger_OddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Info("simple message", "dangling", 7, "ignored")

	logEntry := decode(t, &buf)
	if logEntry["message"] != "simple message" {
		t.Errorf("expected message 'simple message', got %v", logEntry["message"])
	}
	if _, ok := logEntry["ignored"]; ok {
		t.Error("trailing key without value should be dropped")
	}
}

func TestToFields_SkipsNonStringKeys(t *testing.T) {
	fields := toFields([]any{1, "a", "b", 2})
	if len(fields) != 1 || fields["b"] != 2 {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestDispatcherLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	NewDispatcherLogger(zerolog.New(&buf)).Info("worker started")

	if got := decode(t, &buf)["component"]; got != "dispatcher" {
		t.Errorf("expected component=dispatcher, got %v", got)
	}
}
