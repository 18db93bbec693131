package scheduler

import (
	"time"

	"github.com/dronefleet/orchestrator/internal/model"
	"github.com/dronefleet/orchestrator/internal/sink"
	"github.com/dronefleet/orchestrator/internal/transport"
)

// subscribeInbound wires every drone-originated message kind to the
// scheduler's state transitions (spec §6 message table). A drone's identity
// is unknown until its RegisterDrone handshake arrives on the fixed
// DronesGroup, at which point the scheduler subscribes to that drone's own
// group for the rest of its lifetime.
func (s *Scheduler) subscribeInbound() {
	unsub := s.transport.Subscribe(transport.DronesGroup, s.handleRegisterDrone)
	s.unsubscribeFns = append(s.unsubscribeFns, unsub)
}

func (s *Scheduler) handleRegisterDrone(msg transport.Message) {
	var payload model.DroneRegistrationPayload
	if err := transport.UnmarshalPayload(msg, &payload); err != nil {
		s.log.Warn("register_drone_decode_failed error=%v", err)
		return
	}
	if payload.DroneID == "" {
		s.log.Warn("register_drone_missing_id")
		return
	}

	caps := make(map[string]struct{}, len(payload.StaticCapabilities))
	for _, c := range payload.StaticCapabilities {
		caps[c] = struct{}{}
	}

	s.registry.Register(model.DroneInfo{
		DroneID:            payload.DroneID,
		Version:            payload.Version,
		StaticCapabilities: caps,
		Status:             model.DroneIdle,
		LastHeartbeat:      time.Now(),
	})
	s.log.Info("drone_registered drone_id=%s version=%s", payload.DroneID, payload.Version)

	s.workersMu.Lock()
	_, alreadySubscribed := s.workers[payload.DroneID]
	s.workersMu.Unlock()
	if alreadySubscribed {
		return
	}
	// workerFor is what actually creates the per-drone worker; calling it
	// here (instead of waiting for the first dispatched task) ensures the
	// drone's own-group subscription below has somewhere to deliver into
	// even before the scheduler assigns it anything.
	s.workerFor(payload.DroneID)

	group := transport.DroneGroup(payload.DroneID)
	unsub := s.transport.Subscribe(group, func(msg transport.Message) {
		s.handleDroneMessage(payload.DroneID, msg)
	})
	s.unsubscribeFns = append(s.unsubscribeFns, unsub)
}

func (s *Scheduler) handleDroneMessage(droneID string, msg transport.Message) {
	switch msg.Kind {
	case transport.KindAcknowledgeCommand:
		s.handleAcknowledgeCommand(droneID, msg)
	case transport.KindReportResult:
		s.handleReportResult(droneID, msg)
	case transport.KindReportError:
		s.handleReportError(droneID, msg)
	case transport.KindReportStatus:
		s.handleReportStatus(droneID, msg)
	case transport.KindRequireIntervention:
		s.handleRequireIntervention(droneID, msg)
	case transport.KindQueryResponse:
		// No scheduler-side consumer today: query/response round trips are
		// handled by whoever issued the query, not by the dispatch loop.
	default:
		s.log.Warn("unknown_drone_message drone_id=%s kind=%s", droneID, msg.Kind)
	}
}

func (s *Scheduler) handleAcknowledgeCommand(droneID string, msg transport.Message) {
	var payload struct {
		CommandID string `json:"commandId"`
	}
	if err := transport.UnmarshalPayload(msg, &payload); err != nil {
		s.log.Warn("acknowledge_command_decode_failed drone_id=%s error=%v", droneID, err)
		return
	}
	s.tracker.MarkAcknowledged(payload.CommandID, droneID)
}

func (s *Scheduler) handleReportResult(droneID string, msg transport.Message) {
	var payload model.CommandResultPayload
	if err := transport.UnmarshalPayload(msg, &payload); err != nil {
		s.log.Warn("report_result_decode_failed drone_id=%s error=%v", droneID, err)
		return
	}

	for _, artifact := range payload.Artifacts {
		if err := sink.Dispatch(s.ctx, s.artifacts, payload.CommandID, artifact); err != nil {
			s.log.Warn("artifact_store_failed command_id=%s error=%v", payload.CommandID, err)
		}
	}
	if payload.SessionLeaseID != "" {
		if err := s.sessions.UpdateSessionState(s.ctx, payload.SessionLeaseID, payload.SessionState); err != nil {
			s.log.Warn("session_state_update_failed lease_id=%s error=%v", payload.SessionLeaseID, err)
		}
	}

	s.tracker.Complete(payload.CommandID, droneID)
	s.registry.ReleaseLoad(droneID)
	s.registry.UpdateStatus(droneID, model.DroneIdle, "")
}

func (s *Scheduler) handleReportError(droneID string, msg transport.Message) {
	var payload model.CommandErrorPayload
	if err := transport.UnmarshalPayload(msg, &payload); err != nil {
		s.log.Warn("report_error_decode_failed drone_id=%s error=%v", droneID, err)
		return
	}

	s.log.Warn("command_error command_id=%s drone_id=%s error_type=%s error=%s", payload.CommandID, droneID, payload.ErrorType, payload.Error)
	s.tracker.Fail(payload.CommandID, droneID, payload.ErrorType)
	s.registry.ReleaseLoad(droneID)
	s.registry.UpdateStatus(droneID, model.DroneIdle, "")
}

func (s *Scheduler) handleReportStatus(droneID string, msg transport.Message) {
	var payload model.StatusPayload
	if err := transport.UnmarshalPayload(msg, &payload); err != nil {
		s.log.Warn("report_status_decode_failed drone_id=%s error=%v", droneID, err)
		return
	}
	s.registry.Heartbeat(droneID, time.Now())
	if payload.Status != "" {
		s.registry.UpdateStatus(droneID, payload.Status, payload.CurrentCommand)
	}
}

func (s *Scheduler) handleRequireIntervention(droneID string, msg transport.Message) {
	var payload model.InterventionPayload
	if err := transport.UnmarshalPayload(msg, &payload); err != nil {
		s.log.Warn("require_intervention_decode_failed drone_id=%s error=%v", droneID, err)
		return
	}
	payload.DroneID = droneID

	if s.onIntervention != nil {
		s.onIntervention(payload)
		return
	}
	if err := s.transport.Publish(s.ctx, transport.OperatorsGroup, transport.Message{Kind: transport.KindRequireIntervention, Payload: payload}); err != nil {
		s.log.Warn("require_intervention_publish_failed command_id=%s error=%v", payload.CommandID, err)
	}
}
