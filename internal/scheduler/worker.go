package scheduler

import (
	"golang.org/x/sync/semaphore"

	"github.com/dronefleet/orchestrator/internal/queue"
)

// droneWorker owns one per-drone queue, its pacing semaphore, and the single
// worker goroutine draining it (spec §4.5: "one bounded FIFO... a single
// worker per queue runs dispatch for each task").
type droneWorker struct {
	droneID string
	q       *queue.PerDroneQueue
	pacing  *semaphore.Weighted
}

// workerFor returns the droneWorker for droneID, creating it (and its
// queue/pacing semaphore) lazily on first assignment, and starting its
// supervised worker goroutine.
func (s *Scheduler) workerFor(droneID string) *droneWorker {
	s.workersMu.Lock()
	defer s.workersMu.Unlock()

	if w, ok := s.workers[droneID]; ok {
		return w
	}

	w := &droneWorker{
		droneID: droneID,
		q:       queue.NewPerDroneQueue(s.cfg.PerDroneQueueCapacity),
		pacing:  newPacingSemaphore(s.cfg.MaxInFlightPerDrone),
	}
	s.workers[droneID] = w

	s.wg.Add(1)
	go s.superviseWorker(w)

	return w
}

// superviseWorker runs runWorker and restarts it on an unexpected panic,
// while the queue is still open and the scheduler is not stopping (spec
// §4.5).
func (s *Scheduler) superviseWorker(w *droneWorker) {
	defer s.wg.Done()
	for {
		if s.stopping() {
			return
		}
		if s.runWorkerOnce(w) {
			return
		}
		s.log.Warn("drone_worker_restarted drone_id=%s", w.droneID)
	}
}

// runWorkerOnce drains w.q until it closes or the scheduler stops, recovering
// from a panic in dispatch so one bad task can't take down the whole worker.
// Returns true when the worker should not be restarted (clean exit).
func (s *Scheduler) runWorkerOnce(w *droneWorker) (exited bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("drone_worker_panic drone_id=%s recovered=%v", w.droneID, r)
			exited = false
		}
	}()

	for {
		task, ok := w.q.Dequeue(s.ctx)
		if !ok {
			return true
		}
		s.dispatch(w, task)
	}
}

// removeWorker tears down a drone's queue and worker bookkeeping, used when
// the registry reports the drone missing (spec §4.6 step 2).
func (s *Scheduler) removeWorker(droneID string) {
	s.workersMu.Lock()
	w, ok := s.workers[droneID]
	if ok {
		delete(s.workers, droneID)
	}
	s.workersMu.Unlock()
	if ok {
		w.q.Close()
	}
}
