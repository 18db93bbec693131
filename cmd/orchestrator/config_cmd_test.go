package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigValidateCmdAcceptsMinimalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  api_key: secret\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"config", "validate", path})

	if err := root.Execute(); err != nil {
		t.Fatalf("config validate failed: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "is valid") {
		t.Errorf("expected success message, got: %q", got)
	}
	if !strings.Contains(got, "ack_timeout_sec=20") {
		t.Errorf("expected defaulted ack_timeout_sec in output, got: %q", got)
	}
}

func TestConfigValidateCmdRejectsMissingFile(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"config", "validate", filepath.Join(t.TempDir(), "missing.yaml")})

	if err := root.Execute(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateCmdRequiresExactlyOneArg(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"config", "validate"})

	if err := root.Execute(); err == nil {
		t.Fatal("expected error when no config path is given")
	}
}

func TestRootCmdReportsVersion(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"--version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("--version failed: %v", err)
	}
	if !strings.Contains(buf.String(), appVersion) {
		t.Errorf("expected version %q in output, got: %q", appVersion, buf.String())
	}
}
