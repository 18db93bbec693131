package scheduler

import (
	"errors"
	"time"

	"github.com/dronefleet/orchestrator/internal/lifecycle"
	"github.com/dronefleet/orchestrator/internal/model"
	"github.com/dronefleet/orchestrator/internal/persona"
	"github.com/dronefleet/orchestrator/internal/transport"
)

// dispatch runs the spec §4.6 "Per-drone dispatch" sequence for one task
// under w's worker goroutine.
func (s *Scheduler) dispatch(w *droneWorker, task model.Task) {
	// Step 1: acquire pacing token, non-blocking.
	pacing := tryAcquirePacingToken(w.pacing)
	if pacing == nil {
		if err := w.q.Enqueue(s.ctx, task); err != nil {
			s.requeueReady(task)
		}
		return
	}

	// Step 2: read fresh DroneInfo.
	info, ok := s.registry.Get(w.droneID)
	if !ok {
		s.removeWorker(w.droneID)
		pacing.Release()
		s.requeueReady(task)
		return
	}
	if info.Status != model.DroneIdle {
		pacing.Release()
		s.requeueReady(task)
		return
	}

	// Step 3: domain lease, non-blocking.
	var lease lifecycle.Releasable
	if task.Domain != "" {
		l, reason := s.limiter.TryAcquire(w.droneID, task.Domain)
		if l == nil {
			pacing.Release()
			if !s.sleep(time.Second) {
				return
			}
			s.log.Info("domain_denied command_id=%s domain=%s reason=%s", task.CommandID, task.Domain, reason)
			if err := w.q.Enqueue(s.ctx, task); err != nil {
				s.requeueReady(task)
			}
			return
		}
		lease = l
	}

	// Step 4: load persona.
	p, err := s.personas.Load(s.ctx, task.PersonaID)
	if err != nil {
		pacing.Release()
		if lease != nil {
			lease.Release()
		}
		if errors.Is(err, persona.ErrNotFound) {
			s.handlePersonaMissing(task)
			return
		}
		s.log.Error("persona_load_failed command_id=%s persona_id=%s error=%v", task.CommandID, task.PersonaID, err)
		if qerr := w.q.Enqueue(s.ctx, task); qerr != nil {
			s.requeueReady(task)
		}
		return
	}

	// Step 5: compose and publish the command payload.
	payload := model.CommandPayload{
		CommandID:  task.CommandID,
		Type:       task.Type,
		Parameters: task.Parameters,
		Persona:    p.Traits,
		Session:    task.Session,
		TimeoutSec: task.TimeoutSec,
	}
	if err := s.transport.Publish(s.ctx, transport.DroneGroup(w.droneID), transport.Message{Kind: transport.KindExecuteCommand, Payload: payload}); err != nil {
		pacing.Release()
		if lease != nil {
			lease.Release()
		}
		s.log.Error("dispatch_publish_failed command_id=%s drone_id=%s error=%v", task.CommandID, w.droneID, err)
		if qerr := w.q.Enqueue(s.ctx, task); qerr != nil {
			s.requeueReady(task)
		}
		return
	}
	s.registry.MarkAssigned(w.droneID, time.Now())

	// Step 6: mark the drone busy.
	s.registry.UpdateStatus(w.droneID, model.DroneBusy, task.CommandID)

	// Step 7: transfer ownership of pacing token and lease to the tracker.
	if err := s.tracker.RegisterDispatch(task.CommandID, w.droneID, pacing, lease); err != nil {
		s.log.Error("register_dispatch_failed command_id=%s error=%v", task.CommandID, err)
		pacing.Release()
		if lease != nil {
			lease.Release()
		}
		return
	}
	s.met.TasksDispatched(w.droneID)

	// Step 8: fire-and-forget ack-timeout watcher.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.ackTimeoutWatcher(task, w.droneID)
	}()
}

// ackTimeoutWatcher implements spec §4.6 step 8's four outcomes.
func (s *Scheduler) ackTimeoutWatcher(task model.Task, droneID string) {
	res := s.tracker.WaitForAcknowledgement(s.ctx, task.CommandID, s.cfg.ackTimeout())

	switch res.Status {
	case lifecycle.AckAcknowledged:
		return
	case lifecycle.AckFailed:
		if res.Reason == "drone_disconnected" {
			s.requeueReady(task)
		}
		return
	case lifecycle.AckTimeout:
		if res.Reason == "cancelled" {
			return
		}
		s.log.Warn("ack_timeout command_id=%s drone_id=%s", task.CommandID, droneID)
		s.tracker.Fail(task.CommandID, droneID, "ack_timeout")
		s.registry.IncrementErrorCount(droneID)
		s.registry.UpdateStatus(droneID, model.DroneIdle, "")
		s.met.CommandsAckTimeout(droneID)
		s.requeueReady(task)
	}
}
