package scheduler

import (
	"testing"
	"time"

	"github.com/dronefleet/orchestrator/internal/model"
)

func TestPersonaRetryQueuePopsInDueOrder(t *testing.T) {
	q := newPersonaRetryQueue()
	now := time.Now()

	q.schedule(model.Task{CommandID: "late"}, 50*time.Millisecond)
	q.schedule(model.Task{CommandID: "early"}, 5*time.Millisecond)

	due, _ := q.popDue(now)
	if len(due) != 0 {
		t.Fatalf("expected nothing due immediately, got %d", len(due))
	}

	due, wait := q.popDue(now.Add(10 * time.Millisecond))
	if len(due) != 1 || due[0].CommandID != "early" {
		t.Fatalf("expected only 'early' due, got %+v", due)
	}
	if wait <= 0 {
		t.Fatalf("expected a positive wait until 'late' is due, got %v", wait)
	}

	due, _ = q.popDue(now.Add(time.Second))
	if len(due) != 1 || due[0].CommandID != "late" {
		t.Fatalf("expected 'late' due after its delay elapses, got %+v", due)
	}
}

func TestPersonaMissingBackoffClampsAndJitters(t *testing.T) {
	cfg := Config{PersonaMissingBaseDelaySec: 5, PersonaMissingMaxBackoffSec: 20}

	d1 := personaMissingBackoff(cfg, 1)
	if d1 < 3750*time.Millisecond || d1 > 6250*time.Millisecond {
		t.Fatalf("attempt 1 delay out of jitter range: %v", d1)
	}

	// attempt 10 would be base*2^9, far past maxBackoff; confirm it clamps.
	d10 := personaMissingBackoff(cfg, 10)
	if d10 < 15*time.Second || d10 > 25*time.Second {
		t.Fatalf("attempt 10 delay not clamped to maxBackoff range: %v", d10)
	}
}

func TestPersonaMissingBackoffNeverBelowBase(t *testing.T) {
	cfg := Config{PersonaMissingBaseDelaySec: 5, PersonaMissingMaxBackoffSec: 20}

	d0 := personaMissingBackoff(cfg, 0)
	if d0 < 3750*time.Millisecond {
		t.Fatalf("delay for attempt 0 fell below base: %v", d0)
	}
}
