// Package lifecycle implements the CommandLifecycleTracker from spec.md
// §4.3: it tracks one in-flight command per commandId between dispatch and
// its terminal signal, races acknowledgement against a timeout, and
// guarantees exactly-once release of the resources (domain lease, pacing
// token) a dispatch attempt acquired — in the spirit of the teacher's
// LeaseManager transition bookkeeping (internal/model.Status transition
// tables), generalized from a queue-file status field to an in-memory
// per-command future.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dronefleet/orchestrator/internal/logx"
	"github.com/dronefleet/orchestrator/internal/metrics"
)

// Releasable is satisfied by any resource a dispatch attempt holds that
// must be released exactly once when the command reaches a terminal state
// (domainlimiter.Lease and the scheduler's per-drone pacing token both
// implement it).
type Releasable interface {
	Release()
}

// AckStatus is the outcome of waitForAcknowledgement.
type AckStatus int

const (
	AckAcknowledged AckStatus = iota
	AckFailed
	AckTimeout
)

func (s AckStatus) String() string {
	switch s {
	case AckAcknowledged:
		return "acknowledged"
	case AckFailed:
		return "failed"
	default:
		return "timeout"
	}
}

// AckResult is the structured acknowledgement outcome spec.md §9 open
// question (1) resolves in favor of over a bare boolean.
type AckResult struct {
	Status AckStatus
	Reason string
}

type commandState struct {
	droneID string
	pacing  Releasable
	lease   Releasable

	ackCh       chan AckResult
	resolveOnce sync.Once
	releaseOnce sync.Once
}

type completedEntry struct {
	result AckResult
	at     time.Time
}

// Tracker is the CommandLifecycleTracker.
type Tracker struct {
	log *logx.Logger
	met metrics.Metrics

	mu        sync.Mutex
	states    map[string]*commandState
	completed map[string]completedEntry

	completedTTL time.Duration
}

// New constructs a Tracker. completedTTL bounds how long a terminal result
// is kept around to satisfy a late waitForAcknowledgement call before it's
// swept; pass 0 for a sensible default (5 minutes).
func New(log *logx.Logger, met metrics.Metrics, completedTTL time.Duration) *Tracker {
	if log == nil {
		log = logx.New(nil, "lifecycle", logx.LevelInfo)
	}
	if met == nil {
		met = metrics.Noop{}
	}
	if completedTTL <= 0 {
		completedTTL = 5 * time.Minute
	}
	return &Tracker{
		log:          log,
		met:          met,
		states:       make(map[string]*commandState),
		completed:    make(map[string]completedEntry),
		completedTTL: completedTTL,
	}
}

// RegisterDispatch records that commandId was just dispatched to droneId,
// taking ownership of pacing and (optionally) lease — pass a nil interface
// (not a typed nil pointer) for lease when the task has no domain. Fails if
// commandId is already tracked.
func (t *Tracker) RegisterDispatch(commandID, droneID string, pacing, lease Releasable) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.states[commandID]; exists {
		return fmt.Errorf("lifecycle: command %s is already tracked", commandID)
	}
	delete(t.completed, commandID)

	t.states[commandID] = &commandState{
		droneID: droneID,
		pacing:  pacing,
		lease:   lease,
		ackCh:   make(chan AckResult, 1),
	}
	return nil
}

// WaitForAcknowledgement races the ack future for commandId against timeout
// and ctx cancellation.
func (t *Tracker) WaitForAcknowledgement(ctx context.Context, commandID string, timeout time.Duration) AckResult {
	t.mu.Lock()
	st, tracked := t.states[commandID]
	if !tracked {
		res, hasCompletion := t.completed[commandID]
		t.mu.Unlock()
		if hasCompletion {
			return res.result
		}
		// No state and no posted completion: a late caller racing a
		// dispatch that hasn't called RegisterDispatch yet, or one that
		// already resolved and was swept. Treat as acknowledged per spec.
		return AckResult{Status: AckAcknowledged}
	}
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-st.ackCh:
		return res
	case <-timer.C:
		return AckResult{Status: AckTimeout}
	case <-ctx.Done():
		return AckResult{Status: AckTimeout, Reason: "cancelled"}
	}
}

// MarkAcknowledged resolves the ack future for commandId as Acknowledged.
func (t *Tracker) MarkAcknowledged(commandID, droneID string) {
	t.mu.Lock()
	st, ok := t.states[commandID]
	t.mu.Unlock()
	if !ok {
		return
	}
	if st.droneID != droneID {
		t.log.Warn("ack_drone_mismatch command_id=%s expected=%s got=%s", commandID, st.droneID, droneID)
	}
	st.resolveOnce.Do(func() {
		st.ackCh <- AckResult{Status: AckAcknowledged}
	})
	t.met.CommandsAcknowledged(droneID)
}

// Complete marks commandId as having reached a successful terminal state:
// it releases the domain lease then the pacing token, exactly once, resolves
// any pending ack future, and posts a completion result for late waiters.
func (t *Tracker) Complete(commandID, droneID string) {
	t.finish(commandID, droneID, AckResult{Status: AckAcknowledged})
	t.met.CommandsCompleted(droneID)
}

// Fail marks commandId as having reached a failed terminal state with the
// given reason, with the same release/ack/completion semantics as Complete.
func (t *Tracker) Fail(commandID, droneID, reason string) {
	t.finish(commandID, droneID, AckResult{Status: AckFailed, Reason: reason})
	t.met.CommandsFailed(droneID)
}

// FailAll fails every command currently tracked for droneId, used when a
// drone disconnects.
func (t *Tracker) FailAll(droneID, reason string) {
	t.mu.Lock()
	var ids []string
	for id, st := range t.states {
		if st.droneID == droneID {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.Fail(id, droneID, reason)
	}
}

func (t *Tracker) finish(commandID, droneID string, result AckResult) {
	t.mu.Lock()
	st, ok := t.states[commandID]
	if ok {
		delete(t.states, commandID)
	}
	t.completed[commandID] = completedEntry{result: result, at: time.Now()}
	t.sweepCompletedLocked()
	t.mu.Unlock()

	if !ok {
		return
	}

	st.releaseOnce.Do(func() {
		if st.lease != nil {
			st.lease.Release()
		}
		if st.pacing != nil {
			st.pacing.Release()
		}
	})

	st.resolveOnce.Do(func() {
		st.ackCh <- result
	})
}

// sweepCompletedLocked removes completion results older than completedTTL.
// Must be called with t.mu held.
func (t *Tracker) sweepCompletedLocked() {
	if len(t.completed) < 64 {
		return
	}
	cutoff := time.Now().Add(-t.completedTTL)
	for id, entry := range t.completed {
		if entry.at.Before(cutoff) {
			delete(t.completed, id)
		}
	}
}
