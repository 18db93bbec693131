package scheduler

import (
	"sort"
	"time"

	"github.com/dronefleet/orchestrator/internal/model"
)

// eligibleDrones returns every registered drone satisfying spec §4.6.1's
// capability match: requiredCapabilities ⊆ staticCapabilities.
func eligibleDrones(task model.Task, drones []model.DroneInfo) []model.DroneInfo {
	out := make([]model.DroneInfo, 0, len(drones))
	for _, d := range drones {
		if d.Status == model.DroneDisconnected {
			continue
		}
		if task.HasCapabilities(d.StaticCapabilities) {
			out = append(out, d)
		}
	}
	return out
}

// selectionScore implements the spec §4.6.2 tiebreak score:
//   score = 1 + 0.1·overlap + min(0.5, 0.01·idleMinutes) − 0.2·currentLoad + 0.3·priorityOrdinal
func selectionScore(task model.Task, d model.DroneInfo, now time.Time) float64 {
	overlap := float64(task.CapabilityOverlap(d.StaticCapabilities))
	idleBonus := 0.01 * d.IdleMinutes(now)
	if idleBonus > 0.5 {
		idleBonus = 0.5
	}
	return 1 + 0.1*overlap + idleBonus - 0.2*float64(d.CurrentLoad) + 0.3*task.Priority.Ordinal()
}

// selectDrone picks the best eligible drone for task per spec §4.6.2: sort
// by currentLoad ascending, then lastTaskAssignedAt ascending (fairness),
// then selectionScore descending as a tiebreak; return the first.
func selectDrone(task model.Task, eligible []model.DroneInfo, now time.Time) (model.DroneInfo, bool) {
	if len(eligible) == 0 {
		return model.DroneInfo{}, false
	}

	candidates := append([]model.DroneInfo(nil), eligible...)
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CurrentLoad != b.CurrentLoad {
			return a.CurrentLoad < b.CurrentLoad
		}
		if !a.LastTaskAssignedAt.Equal(b.LastTaskAssignedAt) {
			return a.LastTaskAssignedAt.Before(b.LastTaskAssignedAt)
		}
		return selectionScore(task, a, now) > selectionScore(task, b, now)
	})
	return candidates[0], true
}
