// Package main provides tests for the LeapGrid CLI.
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapgrid/internal/cli"
	"github.com/leapstack-labs/leapgrid/internal/cli/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	config.ResetConfig()

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	output, err := execute(t, "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(output, "LeapGrid") {
		t.Errorf("version output should contain 'LeapGrid', got: %s", output)
	}
}

func TestHelpCommand(t *testing.T) {
	output, err := execute(t, "--help")
	if err != nil {
		t.Errorf("help command error = %v", err)
	}

	expectedCommands := []string{"serve", "migrate", "eval", "repl", "functions", "seed", "version"}
	for _, expected := range expectedCommands {
		if !strings.Contains(output, expected) {
			t.Errorf("help output should contain '%s', got: %s", expected, output)
		}
	}
}

func TestEvalCommand(t *testing.T) {
	output, err := execute(t, "eval", "1 + 2")
	if err != nil {
		t.Errorf("eval command error = %v", err)
	}
	if !strings.Contains(output, "3") {
		t.Errorf("eval output should contain '3', got: %s", output)
	}
}

func TestEvalCommandJSON(t *testing.T) {
	output, err := execute(t, "eval", "SUM(1, 2, 3)", "--output", "json")
	if err != nil {
		t.Errorf("eval --output json command error = %v", err)
	}
	if !strings.Contains(output, `"result": 6`) {
		t.Errorf("eval JSON output should contain result 6, got: %s", output)
	}
	if !strings.Contains(output, `"kind": "number"`) {
		t.Errorf("eval JSON output should contain kind number, got: %s", output)
	}
}

func TestEvalCommandWithBindings(t *testing.T) {
	output, err := execute(t, "eval", "[price] * [qty]", "--let", "price=9.5", "--let", "qty=2", "--output", "json")
	if err != nil {
		t.Errorf("eval --let command error = %v", err)
	}
	if !strings.Contains(output, `"result": 19`) {
		t.Errorf("eval output should contain result 19, got: %s", output)
	}
}

func TestEvalCommandParseError(t *testing.T) {
	_, err := execute(t, "eval", "1 +")
	if err == nil {
		t.Error("eval with a malformed formula should return an error")
	}
}

func TestFunctionsCommand(t *testing.T) {
	output, err := execute(t, "functions")
	if err != nil {
		t.Errorf("functions command error = %v", err)
	}
	for _, fn := range []string{"SUM", "IF", "CONCAT"} {
		if !strings.Contains(output, fn) {
			t.Errorf("functions output should contain '%s', got: %s", fn, output)
		}
	}
}

func TestMigrateStatusCommand(t *testing.T) {
	tmpDir := t.TempDir()

	output, err := execute(t,
		"migrate", "status",
		"--data", filepath.Join(tmpDir, "grid.db"),
		"--output", "json",
	)
	if err != nil {
		t.Errorf("migrate status command error = %v", err)
	}
	if !strings.Contains(output, `"version": 0`) {
		t.Errorf("fresh store should be at version 0, got: %s", output)
	}
}

func TestMigrateUpCommand(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "grid.db")

	output, err := execute(t, "migrate", "up", "--data", dbPath, "--output", "json")
	if err != nil {
		t.Errorf("migrate up command error = %v", err)
	}
	if strings.Contains(output, `"version": 0`) {
		t.Errorf("migrated store should not be at version 0, got: %s", output)
	}
}

func TestSeedCommand(t *testing.T) {
	tmpDir := t.TempDir()
	seedPath := filepath.Join(tmpDir, "seed.yaml")
	seedData := `workspace: demo
tables:
  - name: orders
    columns:
      - name: qty
        type: number
      - name: price
        type: number
      - name: total
        type: number
        formula: "[qty] * [price]"
    rows:
      - {qty: 2, price: 9.5}
      - {qty: 1, price: 4}
`
	if err := os.WriteFile(seedPath, []byte(seedData), 0o644); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}

	output, err := execute(t,
		"seed", seedPath,
		"--data", filepath.Join(tmpDir, "grid.db"),
		"--output", "json",
	)
	if err != nil {
		t.Fatalf("seed command error = %v", err)
	}

	if !strings.Contains(output, `"workspace": "demo"`) {
		t.Errorf("seed output should name the workspace, got: %s", output)
	}
	if !strings.Contains(output, `"cells": 4`) {
		t.Errorf("seed output should count 4 written cells, got: %s", output)
	}
	// The computed total column is filled for both rows during the load.
	if !strings.Contains(output, `"recalculated": 2`) {
		t.Errorf("seed output should count 2 recalculated cells, got: %s", output)
	}
}

func TestSeedCommandRejectsUnknownColumn(t *testing.T) {
	tmpDir := t.TempDir()
	seedPath := filepath.Join(tmpDir, "seed.yaml")
	seedData := `workspace: demo
tables:
  - name: orders
    columns:
      - name: qty
        type: number
    rows:
      - {nope: 1}
`
	if err := os.WriteFile(seedPath, []byte(seedData), 0o644); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}

	_, err := execute(t, "seed", seedPath, "--data", filepath.Join(tmpDir, "grid.db"))
	if err == nil {
		t.Error("seed with an unknown row column should return an error")
	}
}

func TestCompletionCommand(t *testing.T) {
	shells := []string{"bash", "zsh", "fish", "powershell"}

	for _, shell := range shells {
		t.Run(shell, func(t *testing.T) {
			_, err := execute(t, "completion", shell)
			if err != nil {
				t.Errorf("completion %s command error = %v", shell, err)
			}
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := execute(t, "unknown-command")
	if err == nil {
		t.Error("unknown command should return an error")
	}
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
