package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/desertthunder/tunesync/internal/shared"
	tu "github.com/desertthunder/tunesync/internal/testing"
)

func TestNewRunner(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})

		if runner.config == nil {
			t.Error("expected a default config")
		}
		if runner.logger == nil {
			t.Error("expected a default logger")
		}
		if runner.output != os.Stdout {
			t.Error("expected output to default to stdout")
		}
	})

	t.Run("provided options", func(t *testing.T) {
		output := &bytes.Buffer{}
		config := shared.DefaultConfig()
		config.Server.Port = 9999

		runner := NewRunner(RunnerOpts{Config: config, Output: output})

		if runner.config.Server.Port != 9999 {
			t.Errorf("expected provided config, got port %d", runner.config.Server.Port)
		}
		if runner.output != output {
			t.Error("expected provided output writer")
		}
	})
}

func TestWritePlain(t *testing.T) {
	t.Run("writes formatted text", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("Database ready at %s\n", "test.db"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if output.String() != "Database ready at test.db\n" {
			t.Errorf("unexpected output: %q", output.String())
		}
	})

	t.Run("handles write failure", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

		err := runner.writePlain("anything")
		if err == nil {
			t.Fatal("expected error from failing writer")
		}
		if !strings.Contains(err.Error(), "failed to write output") {
			t.Errorf("expected write error, got %v", err)
		}
	})
}

func TestRegister(t *testing.T) {
	runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
	commands := runner.register()

	want := map[string]bool{"serve": false, "setup": false, "migrate": false, "config": false}
	for _, command := range commands {
		if _, ok := want[command.Name]; ok {
			want[command.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("expected %s command to be registered", name)
		}
	}
}
