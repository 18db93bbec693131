package persona

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSourceLoadsPersonaTraits(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "p1.yaml"), []byte("tone: formal\nrequireIntervention: true\n"), 0644); err != nil {
		t.Fatalf("write persona file: %v", err)
	}

	source := FileSource(dir)
	p, err := source(context.Background(), "p1")
	if err != nil {
		t.Fatalf("FileSource: %v", err)
	}
	if tone, _ := p.Traits.Get("tone").AsString(); tone != "formal" {
		t.Fatalf("expected tone=formal, got %q", tone)
	}
}

func TestFileSourceReturnsNotFoundForMissingFile(t *testing.T) {
	source := FileSource(t.TempDir())
	if _, err := source(context.Background(), "absent"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
