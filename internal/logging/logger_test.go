package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONWithComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, done, err := New(Options{Writer: buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	Component(logger, "engine").Info("worker spawned")
	Component(logger, "engine").Debug("hidden without verbose")
	done()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if decoded["level"] != "info" || decoded["message"] != "worker spawned" || decoded["component"] != "engine" {
		t.Fatalf("unexpected log entry: %v", decoded)
	}
	if _, ok := decoded["timestamp"]; !ok {
		t.Fatalf("expected timestamp key, got %v", decoded)
	}
}

func TestNewAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gacq.log")
	logger, done, err := New(Options{Path: path, Verbose: true})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("debug line")
	done()

	payload, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(payload), "debug line") {
		t.Fatalf("expected debug line in file, got %q", string(payload))
	}
}

func TestComponentNilLogger(t *testing.T) {
	Component(nil, "share").Info("dropped")
}
