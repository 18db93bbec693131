package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dronefleet/orchestrator/internal/lock"
	"github.com/dronefleet/orchestrator/internal/model"
)

func TestFileDeadLetterSinkWritesArchive(t *testing.T) {
	dir := t.TempDir()
	s := NewFileDeadLetterSink(dir, lock.NewMutexMap(), nil)

	err := s.Publish(context.Background(), model.DeadLetterCommand{
		CommandID:   "c1",
		Reason:      "missing_persona",
		PersonaID:   "p1",
		RetryCount:  3,
		FailedAtUTC: "2026-08-03T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "dead_letters"))
	if err != nil {
		t.Fatalf("read archive dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d archive files, want 1", len(entries))
	}
}

func TestFileDeadLetterSinkSerializesConcurrentWritesPerCommand(t *testing.T) {
	dir := t.TempDir()
	s := NewFileDeadLetterSink(dir, lock.NewMutexMap(), nil)

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			done <- s.Publish(context.Background(), model.DeadLetterCommand{CommandID: "shared", Reason: "x"})
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
}
