package scheduler

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/dronefleet/orchestrator/internal/model"
)

// retryItem is one task awaiting a persona-missing retry, ordered by due
// time (spec §4.6.3: "the retry queue is time-ordered").
type retryItem struct {
	task  model.Task
	dueAt time.Time
	seq   uint64
}

type retryHeap []*retryItem

func (h retryHeap) Len() int            { return len(h) }
func (h retryHeap) Less(i, j int) bool  { return h[i].dueAt.Before(h[j].dueAt) || (h[i].dueAt.Equal(h[j].dueAt) && h[i].seq < h[j].seq) }
func (h retryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x any)         { *h = append(*h, x.(*retryItem)) }
func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// personaRetryQueue is the single scheduler fiber's due-time heap, guarded
// by its own mutex and woken by a channel send whenever a new nearer-term
// item is scheduled.
type personaRetryQueue struct {
	mu     sync.Mutex
	heap   retryHeap
	nextID uint64
	wake   chan struct{}
}

func newPersonaRetryQueue() *personaRetryQueue {
	return &personaRetryQueue{wake: make(chan struct{}, 1)}
}

func (q *personaRetryQueue) schedule(task model.Task, delay time.Duration) {
	q.mu.Lock()
	q.nextID++
	heap.Push(&q.heap, &retryItem{task: task, dueAt: time.Now().Add(delay), seq: q.nextID})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// popDue removes and returns every item whose due time has arrived, and the
// wait duration until the next item is due (zero if the heap is empty).
func (q *personaRetryQueue) popDue(now time.Time) ([]model.Task, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []model.Task
	for q.heap.Len() > 0 {
		next := q.heap[0]
		if next.dueAt.After(now) {
			return due, next.dueAt.Sub(now)
		}
		heap.Pop(&q.heap)
		due = append(due, next.task)
	}
	return due, 0
}

// personaMissingBackoff computes the spec §4.6.3 retry delay:
//   delay = clamp(base·2^(attempt−1), base, maxBackoff) · jitter(0.75..1.25)
func personaMissingBackoff(cfg Config, attempt int) time.Duration {
	base := math.Max(1, float64(cfg.PersonaMissingBaseDelaySec))
	maxBackoff := math.Max(base, float64(cfg.PersonaMissingMaxBackoffSec))

	raw := base * math.Pow(2, float64(attempt-1))
	clamped := math.Min(math.Max(raw, base), maxBackoff)

	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(clamped * jitter * float64(time.Second))
}

// retryLoop runs the persona-retry fiber: sleeps until the next item is due
// (or a new nearer item is scheduled, or the stop token fires), then
// re-enqueues every due task onto the ready queue with a fresh EnqueuedAt.
func (s *Scheduler) retryLoop() {
	defer s.wg.Done()
	for {
		due, wait := s.personaRetry.popDue(time.Now())
		for _, task := range due {
			task.EnqueuedAt = time.Now()
			if err := s.readyQ.Enqueue(s.ctx, task); err != nil {
				s.log.Warn("persona_retry_requeue_failed command_id=%s error=%v", task.CommandID, err)
				continue
			}
			s.met.PersonaMissingRequeued()
			s.log.Info("persona_retry_requeued command_id=%s attempt=%d", task.CommandID, task.PersonaRetryCount)
		}

		if wait <= 0 {
			wait = time.Hour
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.personaRetry.wake:
			timer.Stop()
		case <-s.ctx.Done():
			timer.Stop()
			return
		}
	}
}
