package logx

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(log.New(&buf, "", 0), "test", LevelWarn)

	l.Info("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below min level, got %q", buf.String())
	}

	l.Warn("should appear %d", 1)
	if !strings.Contains(buf.String(), "WARN test: should appear 1") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestWithScopesComponent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(log.New(&buf, "", 0), "scheduler", LevelInfo)
	child := parent.With("scheduler.worker[d1]")

	child.Info("dispatching")
	if !strings.Contains(buf.String(), "scheduler.worker[d1]: dispatching") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": LevelDebug,
		"WARN":  LevelWarn,
		"error": LevelError,
		"":      LevelInfo,
		"huh":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
