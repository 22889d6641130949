package shared

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestGenerateID(t *testing.T) {
	first := GenerateID()
	second := GenerateID()

	if first == "" || second == "" {
		t.Fatal("generated ids must not be empty")
	}
	if first == second {
		t.Error("consecutive ids must differ")
	}
	if len(strings.Split(first, "-")) != 5 {
		t.Errorf("expected a uuid, got %q", first)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	logger.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("expected log output to contain message, got %q", output)
	}
	if !strings.Contains(output, "key") {
		t.Errorf("expected log output to contain key, got %q", output)
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	child := WithLogger(logger, "session", "sess-1")
	child.Info("scoped message")

	output := buf.String()
	if !strings.Contains(output, "sess-1") {
		t.Errorf("expected child logger context in output, got %q", output)
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	SetLogLevel(logger, log.ErrorLevel)
	logger.Info("hidden")
	logger.Error("visible")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Error("info logs should be suppressed at error level")
	}
	if !strings.Contains(output, "visible") {
		t.Error("error logs should pass at error level")
	}
}

func TestNewDatabase(t *testing.T) {
	t.Run("InMemory", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open in-memory database: %v", err)
		}
		defer db.Close()

		var enabled int
		if err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
			t.Fatalf("failed to read pragma: %v", err)
		}
		if enabled != 1 {
			t.Error("foreign key enforcement should be on")
		}
	})

	t.Run("InvalidPath", func(t *testing.T) {
		if _, err := NewDatabase("/nonexistent/dir/test.db"); err == nil {
			t.Error("expected error for unwritable path")
		}
	})
}
