// Package droneregistry is the in-memory DroneInfo store the scheduler reads
// snapshots from (spec.md §3 "Ownership": the registry owns the
// authoritative copy, the scheduler only ever reads copies). There is no
// teacher analog — drone registration handshakes are out of scope for the
// source this module was distilled from — so this is grounded directly on
// spec §3/§6 (RegisterDrone, ReportStatus) and styled like the rest of this
// module's small mutex-guarded in-memory stores.
package droneregistry

import (
	"sync"
	"time"

	"github.com/dronefleet/orchestrator/internal/model"
)

// Registry is a concurrency-safe map of droneId to DroneInfo.
type Registry struct {
	mu     sync.RWMutex
	drones map[string]model.DroneInfo
}

func New() *Registry {
	return &Registry{drones: make(map[string]model.DroneInfo)}
}

// Register records (or replaces) a drone's registration. Called from the
// transport layer's RegisterDrone handler.
func (r *Registry) Register(info model.DroneInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info.LastHeartbeat.IsZero() {
		info.LastHeartbeat = time.Now()
	}
	if info.Status == "" {
		info.Status = model.DroneIdle
	}
	r.drones[info.DroneID] = info
}

// Get returns a snapshot of droneId's current state.
func (r *Registry) Get(droneID string) (model.DroneInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drones[droneID]
	return d, ok
}

// All returns a snapshot of every registered drone.
func (r *Registry) All() []model.DroneInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.DroneInfo, 0, len(r.drones))
	for _, d := range r.drones {
		out = append(out, d)
	}
	return out
}

// Remove drops a drone from the registry (on disconnect).
func (r *Registry) Remove(droneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drones, droneID)
}

// UpdateStatus sets status and, when busy, the current command.
func (r *Registry) UpdateStatus(droneID string, status model.DroneStatus, currentCommand string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drones[droneID]
	if !ok {
		return
	}
	d.Status = status
	d.CurrentCommand = currentCommand
	r.drones[droneID] = d
}

// Heartbeat sets the drone's LastHeartbeat to now. Unknown drone ids are
// ignored.
func (r *Registry) Heartbeat(droneID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drones[droneID]
	if !ok {
		return
	}
	d.LastHeartbeat = now
	r.drones[droneID] = d
}

// MarkAssigned stamps LastTaskAssignedAt and bumps CurrentLoad, used right
// after a successful dispatch publish (spec §4.6.2 "record
// lastAssignment[droneId] = now").
func (r *Registry) MarkAssigned(droneID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drones[droneID]
	if !ok {
		return
	}
	d.LastTaskAssignedAt = now
	d.CurrentLoad++
	r.drones[droneID] = d
}

// ReleaseLoad decrements CurrentLoad on command completion/failure, never
// below zero.
func (r *Registry) ReleaseLoad(droneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drones[droneID]
	if !ok {
		return
	}
	if d.CurrentLoad > 0 {
		d.CurrentLoad--
	}
	r.drones[droneID] = d
}

// IncrementErrorCount bumps ErrorCount, used on ack timeout.
func (r *Registry) IncrementErrorCount(droneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drones[droneID]
	if !ok {
		return
	}
	d.ErrorCount++
	r.drones[droneID] = d
}

// DisconnectStale marks drones whose LastHeartbeat is older than
// graceSec+expectSec as Disconnected, returning their ids so the caller can
// fail their in-flight commands.
func (r *Registry) DisconnectStale(now time.Time, heartbeatExpect, disconnectGrace time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []string
	cutoff := heartbeatExpect + disconnectGrace
	for id, d := range r.drones {
		if d.Status == model.DroneDisconnected {
			continue
		}
		if now.Sub(d.LastHeartbeat) > cutoff {
			d.Status = model.DroneDisconnected
			r.drones[id] = d
			stale = append(stale, id)
		}
	}
	return stale
}
