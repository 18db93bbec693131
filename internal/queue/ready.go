// Package queue implements spec.md §4.4 PriorityReadyQueue and §4.5
// PerDroneQueue: a bounded, priority-ordered ready queue generalizing the
// teacher's SortPendingTasks effective-priority ordering key
// (priorityScore, enqueuedAt, id) from a one-shot sort over a slice into a
// live container/heap that blocking enqueue/dequeue callers share, plus a
// bounded per-drone FIFO.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/dronefleet/orchestrator/internal/model"
)

// entry is one item living in the ready heap.
type entry struct {
	task       model.Task
	enqueuedAt time.Time
	sequence   uint64
}

// priorityHeap implements heap.Interface, ordered by
// (priorityScore, enqueuedAt, sequence) per spec §4.4.
type priorityHeap []*entry

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	si, sj := -h[i].task.Priority.Ordinal(), -h[j].task.Priority.Ordinal()
	if si != sj {
		return si < sj
	}
	if !h[i].enqueuedAt.Equal(h[j].enqueuedAt) {
		return h[i].enqueuedAt.Before(h[j].enqueuedAt)
	}
	return h[i].sequence < h[j].sequence
}

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// ReadyQueue is the PriorityReadyQueue: bounded capacity, blocking
// enqueue/dequeue, priority-ordered.
type ReadyQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	heap     priorityHeap
	capacity int
	nextSeq  uint64
	closed   bool
}

// NewReadyQueue constructs a ReadyQueue with the given bounded capacity.
func NewReadyQueue(capacity int) *ReadyQueue {
	q := &ReadyQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Enqueue blocks while the queue is full, respecting ctx cancellation.
// enqueuedAt is stamped fresh here (callers that re-enqueue a task after a
// dispatch-time failure should rely on this to refresh ordering, per spec
// §4.6's ack-timeout watcher "update enqueuedAt" instruction).
func (q *ReadyQueue) Enqueue(ctx context.Context, task model.Task) error {
	done := make(chan struct{})
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.notFull.Broadcast()
				q.mu.Unlock()
			case <-done:
			}
		}()
		defer close(done)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.capacity > 0 && len(q.heap) >= q.capacity {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		q.notFull.Wait()
	}
	if q.closed {
		return errClosed
	}

	q.nextSeq++
	task.EnqueuedAt = time.Now()
	task.Sequence = q.nextSeq
	heap.Push(&q.heap, &entry{task: task, enqueuedAt: task.EnqueuedAt, sequence: task.Sequence})
	q.notEmpty.Signal()
	return nil
}

// Dequeue blocks while the queue is empty, respecting ctx cancellation.
// Returns (task, true) normally, or (zero, false) once Complete has been
// called and the queue has drained.
func (q *ReadyQueue) Dequeue(ctx context.Context) (model.Task, bool) {
	done := make(chan struct{})
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.notEmpty.Broadcast()
				q.mu.Unlock()
			case <-done:
			}
		}()
		defer close(done)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.heap) == 0 {
		if q.closed {
			return model.Task{}, false
		}
		if ctx != nil && ctx.Err() != nil {
			return model.Task{}, false
		}
		q.notEmpty.Wait()
	}

	e := heap.Pop(&q.heap).(*entry)
	q.notFull.Signal()
	return e.task, true
}

// Len returns the current queue depth, for the queue_global_length gauge.
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Complete wakes every blocked Dequeue caller so they drain remaining items
// and then return (zero, false). Idempotent.
func (q *ReadyQueue) Complete() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

type queueClosedError struct{}

func (queueClosedError) Error() string { return "queue: closed" }

var errClosed = queueClosedError{}
