package intervention

import (
	"context"
	"testing"
	"time"

	"github.com/dronefleet/orchestrator/internal/model"
	"github.com/dronefleet/orchestrator/internal/transport"
)

func testParentCommand() model.CommandPayload {
	return model.CommandPayload{
		CommandID:  "cmd-1",
		Type:       "Click",
		Parameters: model.ObjectValue(map[string]model.Value{"selector": model.StringValue("#buy")}),
	}
}

func TestInitiateRejectsWhileActive(t *testing.T) {
	bus := transport.NewBus(8)
	ctrl := newStubController()
	m := New(Config{}, Deps{Controller: ctrl, Transport: bus})

	if _, err := m.Initiate(context.Background(), "captcha", testParentCommand()); err != nil {
		t.Fatalf("first Initiate: %v", err)
	}
	if _, err := m.Initiate(context.Background(), "captcha", testParentCommand()); err != ErrAlreadyActive {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestInitiateCapturesContextAndEnablesInteraction(t *testing.T) {
	bus := transport.NewBus(8)
	ctrl := newStubController()
	m := New(Config{}, Deps{Controller: ctrl, Transport: bus})

	ctx, err := m.Initiate(context.Background(), "login_wall", testParentCommand())
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if ctx.URL != ctrl.url {
		t.Fatalf("expected captured URL %s, got %s", ctrl.url, ctx.URL)
	}
	if ctx.ReplayableAction.CommandID != "cmd-1_replay" {
		t.Fatalf("expected replayable command id suffix, got %s", ctx.ReplayableAction.CommandID)
	}
	if !ctrl.isInteractionEnabled() {
		t.Fatal("expected EnableInteraction to have been called")
	}

	got, active := m.GetCurrentIntervention()
	if !active {
		t.Fatal("expected GetCurrentIntervention to report active")
	}
	if got.ParentCommandID != "cmd-1" {
		t.Fatalf("unexpected parent command id: %s", got.ParentCommandID)
	}
}

func TestInitiatePublishesRequireIntervention(t *testing.T) {
	bus := transport.NewBus(8)
	ctrl := newStubController()
	m := New(Config{}, Deps{Controller: ctrl, Transport: bus})

	received := make(chan transport.Message, 1)
	bus.Subscribe(transport.OperatorsGroup, func(msg transport.Message) {
		received <- msg
	})

	if _, err := m.Initiate(context.Background(), "captcha", testParentCommand()); err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Kind != transport.KindRequireIntervention {
			t.Fatalf("expected KindRequireIntervention, got %s", msg.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for RequireIntervention broadcast")
	}
}

func TestResumeExecutesReplayableActionByDefault(t *testing.T) {
	ctrl := newStubController()
	m := New(Config{}, Deps{Controller: ctrl})

	parent := testParentCommand()
	if _, err := m.Initiate(context.Background(), "captcha", parent); err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	res, err := m.Resume(context.Background(), ResumeOptions{})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !res.Resumed || res.ParentCommandID != "cmd-1" {
		t.Fatalf("unexpected resume result: %+v", res)
	}

	executed := ctrl.executedCommands()
	if len(executed) != 1 || executed[0].CommandID != "cmd-1_replay" {
		t.Fatalf("expected replay of cmd-1_replay, got %+v", executed)
	}
	if ctrl.isInteractionEnabled() {
		t.Fatal("expected DisableInteraction to have been called on resume")
	}
	if _, active := m.GetCurrentIntervention(); active {
		t.Fatal("expected manager to be Idle after Resume")
	}
}

func TestResumeExecutesOverrideAction(t *testing.T) {
	ctrl := newStubController()
	m := New(Config{}, Deps{Controller: ctrl})

	if _, err := m.Initiate(context.Background(), "captcha", testParentCommand()); err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	override := model.CommandPayload{CommandID: "operator-override", Type: "Navigate"}
	if _, err := m.Resume(context.Background(), ResumeOptions{ActionOverride: &override}); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	executed := ctrl.executedCommands()
	if len(executed) != 1 || executed[0].CommandID != "operator-override" {
		t.Fatalf("expected override execution, got %+v", executed)
	}
}

func TestResumeWithoutActiveInterventionFails(t *testing.T) {
	m := New(Config{}, Deps{Controller: newStubController()})
	if _, err := m.Resume(context.Background(), ResumeOptions{}); err != ErrNotActive {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestWindowTimeoutEndsInterventionAndDisablesInteraction(t *testing.T) {
	ctrl := newStubController()
	m := New(Config{WindowTtlSec: 1, StepTtlSec: 60}, Deps{Controller: ctrl})

	if _, err := m.Initiate(context.Background(), "captcha", testParentCommand()); err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, active := m.GetCurrentIntervention(); !active {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, active := m.GetCurrentIntervention(); active {
		t.Fatal("expected window timeout to end the intervention")
	}
	if ctrl.isInteractionEnabled() {
		t.Fatal("expected window timeout to disable interaction")
	}
}

func TestStepTimeoutResetByHandleCommand(t *testing.T) {
	ctrl := newStubController()
	m := New(Config{WindowTtlSec: 60, StepTtlSec: 1}, Deps{Controller: ctrl})

	parent := testParentCommand()
	if _, err := m.Initiate(context.Background(), "captcha", parent); err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	step := model.CommandPayload{
		CommandID: "step-1",
		Type:      "Click",
		Parameters: model.ObjectValue(map[string]model.Value{
			"mode":            model.StringValue("intervention"),
			"parentCommandId": model.StringValue(parent.CommandID),
		}),
	}

	// Keep submitting steps inside the step window; the intervention must
	// stay active the whole time.
	for i := 0; i < 3; i++ {
		time.Sleep(400 * time.Millisecond)
		if _, err := m.HandleCommand(context.Background(), step); err != nil {
			t.Fatalf("HandleCommand: %v", err)
		}
	}
	if _, active := m.GetCurrentIntervention(); !active {
		t.Fatal("expected intervention to remain active while steps keep arriving")
	}

	time.Sleep(2 * time.Second)
	if _, active := m.GetCurrentIntervention(); active {
		t.Fatal("expected intervention to end once steps stop arriving")
	}
}

func TestHandleCommandWhitelist(t *testing.T) {
	parent := testParentCommand()

	tagged := func(cmdType string, extra map[string]model.Value) model.CommandPayload {
		fields := map[string]model.Value{
			"mode":            model.StringValue("intervention"),
			"parentCommandId": model.StringValue(parent.CommandID),
		}
		for k, v := range extra {
			fields[k] = v
		}
		return model.CommandPayload{CommandID: "step", Type: cmdType, Parameters: model.ObjectValue(fields)}
	}

	cases := []struct {
		name    string
		cmd     model.CommandPayload
		allowed bool
	}{
		{"navigate", tagged("Navigate", nil), true},
		{"click", tagged("Click", nil), true},
		{"wait_for_element", tagged("WaitForElement", nil), true},
		{"type", tagged("Type", nil), true},
		{"scroll_by_name", tagged("ScrollIntoView", nil), true},
		{"mousemove_by_name", tagged("MouseMoveTo", nil), true},
		{"script_unsafe", tagged("ExecuteScript", map[string]model.Value{"safe": model.BoolValue(false)}), false},
		{"script_safe", tagged("ExecuteScript", map[string]model.Value{"safe": model.BoolValue(true)}), true},
		{"cookies_import", tagged("ManageCookies", map[string]model.Value{"action": model.StringValue("Import")}), true},
		{"cookies_delete", tagged("ManageCookies", map[string]model.Value{"action": model.StringValue("Delete")}), false},
		{"arbitrary", tagged("SubmitForm", nil), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := newStubController()
			m := New(Config{WindowTtlSec: 60, StepTtlSec: 60}, Deps{Controller: ctrl})
			if _, err := m.Initiate(context.Background(), "captcha", parent); err != nil {
				t.Fatalf("Initiate: %v", err)
			}
			_, err := m.HandleCommand(context.Background(), tc.cmd)
			if tc.allowed && err != nil {
				t.Fatalf("expected %s to be allowed, got %v", tc.cmd.Type, err)
			}
			if !tc.allowed && err != ErrInvalidInInterventionMode {
				t.Fatalf("expected %s to be rejected with ErrInvalidInInterventionMode, got %v", tc.cmd.Type, err)
			}
		})
	}
}

func TestHandleCommandRejectsWrongParent(t *testing.T) {
	ctrl := newStubController()
	m := New(Config{}, Deps{Controller: ctrl})
	parent := testParentCommand()
	if _, err := m.Initiate(context.Background(), "captcha", parent); err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	cmd := model.CommandPayload{
		CommandID: "step",
		Type:      "Click",
		Parameters: model.ObjectValue(map[string]model.Value{
			"mode":            model.StringValue("intervention"),
			"parentCommandId": model.StringValue("some-other-command"),
		}),
	}
	if _, err := m.HandleCommand(context.Background(), cmd); err != ErrInvalidInInterventionMode {
		t.Fatalf("expected rejection for mismatched parent command id, got %v", err)
	}
}

func TestHandleCommandRejectsWhenIdle(t *testing.T) {
	m := New(Config{}, Deps{Controller: newStubController()})
	cmd := model.CommandPayload{Type: "Click"}
	if _, err := m.HandleCommand(context.Background(), cmd); err != ErrNotActive {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}
