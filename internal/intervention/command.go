package intervention

import (
	"context"
	"strings"
	"time"

	"github.com/dronefleet/orchestrator/internal/model"
)

// HandleCommand implements spec §4.7's whitelist: while Active, only
// commands tagged for this intervention and matching the whitelist are
// forwarded to the controller; everything else is rejected with
// ErrInvalidInInterventionMode.
func (m *Manager) HandleCommand(ctx context.Context, cmd model.CommandPayload) (model.Value, error) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return model.Value{}, ErrNotActive
	}
	parentID := m.context.ParentCommandID
	m.mu.Unlock()

	if !isIntervention(cmd.Parameters, parentID) || !isWhitelisted(cmd) {
		return model.Value{}, ErrInvalidInInterventionMode
	}

	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return model.Value{}, ErrNotActive
	}
	now := time.Now()
	m.context.Steps = append(m.context.Steps, model.InterventionStep{
		CommandType: cmd.Type,
		Timestamp:   now,
		Command:     cmd,
	})
	m.context.LastStepTime = now
	if m.stepTimer != nil {
		m.stepTimer.Stop()
	}
	m.stepTimer = time.AfterFunc(m.context.StepTTL, m.onStepTimeout)
	m.mu.Unlock()

	if m.controller == nil {
		return model.Value{}, nil
	}
	return m.controller.Execute(ctx, cmd)
}

// isIntervention checks the mode/parentCommandId tags spec §4.7 requires of
// every command submitted during an active intervention.
func isIntervention(params model.Value, parentID string) bool {
	mode, ok := params.Get("mode").AsString()
	if !ok || !strings.EqualFold(mode, "intervention") {
		return false
	}
	got, ok := params.Get("parentCommandId").AsString()
	if !ok {
		return false
	}
	return got == parentID
}

// isWhitelisted implements spec §4.7's command-kind whitelist.
func isWhitelisted(cmd model.CommandPayload) bool {
	switch {
	case equalFold(cmd.Type, "Navigate"), equalFold(cmd.Type, "Click"), equalFold(cmd.Type, "WaitForElement"):
		return true
	case equalFold(cmd.Type, "Type"):
		return true
	case equalFold(cmd.Type, "ExecuteScript"):
		safe, _ := cmd.Parameters.Get("safe").AsBool()
		return safe
	case equalFold(cmd.Type, "ManageCookies"):
		action, _ := cmd.Parameters.Get("action").AsString()
		return equalFold(action, "Import") || equalFold(action, "Export")
	}
	lower := strings.ToLower(cmd.Type)
	return strings.Contains(lower, "wait") || strings.Contains(lower, "scroll") || strings.Contains(lower, "mousemove")
}

func equalFold(a, b string) bool { return strings.EqualFold(a, b) }
