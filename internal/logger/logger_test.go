package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud", Format: "json"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestSetLevelPropagatesToChildren(t *testing.T) {
	log, err := New(Config{Level: "info", Format: "console"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	child := log.WithComponent("anonymizer").WithRequestID("req-1")

	if child.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should be disabled at info level")
	}
	if err := log.SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	if !child.Core().Enabled(zapcore.DebugLevel) {
		t.Error("child logger should follow the parent's level")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "out.log")
	log, err := New(Config{
		Level:  "info",
		Format: "json",
		File:   &FileConfig{Enabled: true, Path: path},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.WithSupplier("acme").LogRedaction("acme", 3, map[string]int{"email": 3})
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"total_replacements":3`) {
		t.Errorf("log file missing redaction entry: %s", data)
	}
}
