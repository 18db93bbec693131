package queue

import (
	"context"
	"sync"

	"github.com/dronefleet/orchestrator/internal/model"
)

// PerDroneQueue is a bounded FIFO of capacity PerDroneQueue.Capacity,
// created lazily on first assignment to a drone (spec §4.5). Unlike
// ReadyQueue it carries no priority ordering — a drone's own queue is
// strict FIFO since priority ordering already happened at the ready queue.
type PerDroneQueue struct {
	ch     chan model.Task
	closed chan struct{}
	once   sync.Once
}

// NewPerDroneQueue constructs a PerDroneQueue with the given capacity.
func NewPerDroneQueue(capacity int) *PerDroneQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &PerDroneQueue{
		ch:     make(chan model.Task, capacity),
		closed: make(chan struct{}),
	}
}

// Enqueue blocks while the queue is full, respecting ctx cancellation.
func (q *PerDroneQueue) Enqueue(ctx context.Context, task model.Task) error {
	select {
	case q.ch <- task:
		return nil
	default:
	}
	select {
	case q.ch <- task:
		return nil
	case <-q.closed:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a task is available, the queue is closed (returns
// false), or ctx is cancelled (returns false).
func (q *PerDroneQueue) Dequeue(ctx context.Context) (model.Task, bool) {
	select {
	case t, ok := <-q.ch:
		if ok {
			return t, true
		}
		return model.Task{}, false
	case <-q.closed:
		// Drain whatever is still buffered before reporting closed.
		select {
		case t, ok := <-q.ch:
			if ok {
				return t, true
			}
		default:
		}
		return model.Task{}, false
	case <-ctx.Done():
		return model.Task{}, false
	}
}

// Len returns the current buffered depth, for queue_per_drone_length.
func (q *PerDroneQueue) Len() int { return len(q.ch) }

// Close signals the worker reading this queue to exit once drained.
// Idempotent.
func (q *PerDroneQueue) Close() {
	q.once.Do(func() { close(q.closed) })
}
