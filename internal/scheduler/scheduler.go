// Package scheduler implements the Scheduler, PriorityReadyQueue consumer,
// and PerDroneQueue/Worker components of spec.md §4.4–§4.6: a ready loop
// that matches tasks to eligible drones, a per-drone dispatch sequence that
// acquires pacing and domain-lease resources non-blocking, and the
// persona-missing backoff and ack-timeout watcher fibers. Grounded on the
// teacher's Dispatcher (selection/dispatch shape) and QueueHandler/Daemon
// (ctx/cancel/wg shutdown idiom).
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dronefleet/orchestrator/internal/domainlimiter"
	"github.com/dronefleet/orchestrator/internal/droneregistry"
	"github.com/dronefleet/orchestrator/internal/lifecycle"
	"github.com/dronefleet/orchestrator/internal/logx"
	"github.com/dronefleet/orchestrator/internal/metrics"
	"github.com/dronefleet/orchestrator/internal/model"
	"github.com/dronefleet/orchestrator/internal/persona"
	"github.com/dronefleet/orchestrator/internal/queue"
	"github.com/dronefleet/orchestrator/internal/sink"
	"github.com/dronefleet/orchestrator/internal/suffix"
	"github.com/dronefleet/orchestrator/internal/transport"
)

// Deps bundles the Scheduler's collaborators. Log/Metrics default to a
// "scheduler" logger and no-op metrics, and Artifacts/Sessions to in-memory
// implementations; a nil Suffix, DeadLetter, Notifier or
// OnInterventionRequired is skipped where it would be used. Every other
// field is required.
type Deps struct {
	Log       *logx.Logger
	Metrics   metrics.Metrics
	Transport transport.Transport
	Registry  *droneregistry.Registry
	Limiter   *domainlimiter.Limiter
	Tracker   *lifecycle.Tracker
	Personas  persona.Store
	Suffix    *suffix.Index

	Artifacts  sink.ArtifactSink
	Sessions   sink.SessionRegistry
	DeadLetter sink.DeadLetterSink
	Notifier   sink.InterventionNotifier

	// OnInterventionRequired, when set, is invoked for every
	// RequireIntervention message a drone reports, so an intervention
	// manager can take over without this package depending on it.
	OnInterventionRequired func(model.InterventionPayload)
}

// Scheduler is the spec §4.6 Scheduler: it owns the ready queue, one
// per-drone queue/worker per known drone, the persona-retry fiber, and the
// ack-timeout watchers for in-flight commands.
type Scheduler struct {
	cfg Config
	log *logx.Logger
	met metrics.Metrics

	transport transport.Transport
	registry  *droneregistry.Registry
	limiter   *domainlimiter.Limiter
	tracker   *lifecycle.Tracker
	personas  persona.Store
	suffixIdx *suffix.Index

	artifacts  sink.ArtifactSink
	sessions   sink.SessionRegistry
	deadLetter sink.DeadLetterSink
	notifier   sink.InterventionNotifier

	onIntervention func(model.InterventionPayload)

	readyQ *queue.ReadyQueue

	workersMu sync.Mutex
	workers   map[string]*droneWorker

	personaRetry *personaRetryQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	unsubscribeFns []func()
}

// New constructs a Scheduler. Call Start to begin running it.
func New(cfg Config, deps Deps) *Scheduler {
	cfg = cfg.WithDefaults()

	met := deps.Metrics
	if met == nil {
		met = metrics.Noop{}
	}
	log := deps.Log
	if log == nil {
		log = logx.New(nil, "scheduler", logx.LevelInfo)
	}
	artifacts := deps.Artifacts
	if artifacts == nil {
		artifacts = sink.NewMemoryArtifactSink()
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = sink.NewMemorySessionRegistry()
	}

	return &Scheduler{
		cfg:            cfg,
		log:            log,
		met:            met,
		transport:      deps.Transport,
		registry:       deps.Registry,
		limiter:        deps.Limiter,
		tracker:        deps.Tracker,
		personas:       deps.Personas,
		suffixIdx:      deps.Suffix,
		artifacts:      artifacts,
		sessions:       sessions,
		deadLetter:     deps.DeadLetter,
		notifier:       deps.Notifier,
		onIntervention: deps.OnInterventionRequired,
		readyQ:         queue.NewReadyQueue(cfg.ReadyQueueCapacity),
		workers:        make(map[string]*droneWorker),
		personaRetry:   newPersonaRetryQueue(),
	}
}

// Start begins the scheduler's background fibers: the ready loop, the
// persona-retry loop, the heartbeat sweep loop, and the inbound transport
// subscriptions. It returns immediately; call Stop to shut down.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.subscribeInbound()

	s.wg.Add(3)
	go s.readyLoop()
	go s.retryLoop()
	go s.heartbeatSweepLoop()
}

// Stop cascades the stop-token: closes the ready queue, every per-drone
// queue, and wakes the retry timer, then waits for every fiber and worker
// goroutine to exit (spec §5).
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.readyQ.Complete()

	s.workersMu.Lock()
	for _, w := range s.workers {
		w.q.Close()
	}
	s.workersMu.Unlock()

	for _, fn := range s.unsubscribeFns {
		fn()
	}

	s.wg.Wait()
}

func (s *Scheduler) stopping() bool {
	return s.ctx.Err() != nil
}

// Enqueue validates and admits task onto the ready queue (spec §4.6
// "Validation"). Returns false if the task is rejected or the scheduler is
// shutting down.
func (s *Scheduler) Enqueue(task model.Task) bool {
	if err := task.Validate(); err != nil {
		s.log.Warn("task_rejected command_id=%s error=%v", task.CommandID, err)
		return false
	}

	if task.Domain != "" && s.suffixIdx != nil {
		task.Domain = s.suffixIdx.GetRegistrableDomain(task.Domain)
	}
	task.EnqueuedAt = time.Now()

	if err := s.readyQ.Enqueue(s.ctx, task); err != nil {
		s.log.Warn("task_enqueue_failed command_id=%s error=%v", task.CommandID, err)
		return false
	}
	s.met.TasksEnqueued()
	s.met.QueueGlobalLength(s.readyQ.Len())
	return true
}

// readyLoop implements spec §4.6's "Ready loop": dequeue task, find
// eligible drones, select one, enqueue to its per-drone queue; if none
// eligible, wait 1s and re-enqueue.
func (s *Scheduler) readyLoop() {
	defer s.wg.Done()
	for {
		task, ok := s.readyQ.Dequeue(s.ctx)
		if !ok {
			return
		}
		s.met.QueueGlobalLength(s.readyQ.Len())

		eligible := eligibleDrones(task, s.registry.All())
		if len(eligible) == 0 {
			if !s.sleep(time.Second) {
				return
			}
			s.requeueReady(task)
			continue
		}

		chosen, ok := selectDrone(task, eligible, time.Now())
		if !ok {
			if !s.sleep(time.Second) {
				return
			}
			s.requeueReady(task)
			continue
		}

		w := s.workerFor(chosen.DroneID)
		if err := w.q.Enqueue(s.ctx, task); err != nil {
			s.requeueReady(task)
			continue
		}
		s.met.TasksQueued(chosen.DroneID)
		s.met.QueuePerDroneLength(chosen.DroneID, w.q.Len())
	}
}

// sleep waits for d or the stop token, returning false if the scheduler is
// stopping.
func (s *Scheduler) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// requeueReady re-enqueues task onto the ready queue with a fresh
// EnqueuedAt, bumping tasks_requeued_total.
func (s *Scheduler) requeueReady(task model.Task) {
	task.EnqueuedAt = time.Now()
	if err := s.readyQ.Enqueue(s.ctx, task); err != nil {
		s.log.Warn("task_requeue_failed command_id=%s error=%v", task.CommandID, err)
		return
	}
	s.met.TasksRequeued()
}

// heartbeatSweepLoop periodically disconnects drones whose heartbeat has
// gone stale, failing every in-flight command they hold (spec §8
// "Disconnect mid-flight").
func (s *Scheduler) heartbeatSweepLoop() {
	defer s.wg.Done()
	interval := s.cfg.heartbeatExpect() / 2
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stale := s.registry.DisconnectStale(time.Now(), s.cfg.heartbeatExpect(), s.cfg.disconnectGrace())
			for _, droneID := range stale {
				s.log.Warn("drone_disconnected drone_id=%s", droneID)
				s.tracker.FailAll(droneID, "drone_disconnected")
				s.removeWorker(droneID)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// handlePersonaMissing implements spec §4.6.3.
func (s *Scheduler) handlePersonaMissing(task model.Task) {
	task.PersonaRetryCount++

	if task.PersonaRetryCount > s.cfg.PersonaMissingMaxRetries {
		s.met.PersonaMissingFailed()
		s.log.Warn("persona_missing_dead_letter command_id=%s persona_id=%s attempts=%d", task.CommandID, task.PersonaID, task.PersonaRetryCount)

		if s.deadLetter != nil {
			entry := model.DeadLetterCommand{
				CommandID:   task.CommandID,
				Reason:      "missing_persona",
				PersonaID:   task.PersonaID,
				RetryCount:  task.PersonaRetryCount,
				FailedAtUTC: time.Now().UTC().Format(time.RFC3339),
			}
			if err := s.deadLetter.Publish(s.ctx, entry); err != nil {
				s.log.Error("dead_letter_publish_failed command_id=%s error=%v", task.CommandID, err)
			}
		}
		if s.notifier != nil {
			msg := fmt.Sprintf("command %s dead-lettered: missing persona %s", task.CommandID, task.PersonaID)
			if err := s.notifier.Notify(s.ctx, "Drone Orchestrator", msg); err != nil {
				s.log.Warn("intervention_notify_failed command_id=%s error=%v", task.CommandID, err)
			}
		}
		return
	}

	s.met.PersonaMissingRetry()
	delay := personaMissingBackoff(s.cfg, task.PersonaRetryCount)
	s.personaRetry.schedule(task, delay)
	s.log.Info("persona_missing_retry_scheduled command_id=%s persona_id=%s attempt=%d delay=%s", task.CommandID, task.PersonaID, task.PersonaRetryCount, delay)
}
