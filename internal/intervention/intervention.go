// Package intervention implements the InterventionManager from spec.md
// §4.7: a single-active-session state machine that pauses automated
// dispatch for one command, lets a human operator drive the browser
// through a whitelisted command set, and resumes either with an operator-
// supplied override or a replay of the original action. Grounded on the
// teacher's LeaseManager/Dispatcher single-exclusive-section style (one
// mutex around every public state transition) generalized from a queue-file
// status field to an in-memory Idle/Active state machine with its own
// window/step timers.
package intervention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dronefleet/orchestrator/internal/logx"
	"github.com/dronefleet/orchestrator/internal/metrics"
	"github.com/dronefleet/orchestrator/internal/model"
	"github.com/dronefleet/orchestrator/internal/transport"
	"github.com/google/uuid"
)

// Config holds the intervention tunables from spec.md §6, zero-value-means-
// default like the rest of this module.
type Config struct {
	AttachScreenshot bool
	WindowTtlSec     int
	StepTtlSec       int
}

// WithDefaults returns a copy of cfg with zero-valued fields replaced by
// their spec.md §6 default.
func (c Config) WithDefaults() Config {
	if c.WindowTtlSec <= 0 {
		c.WindowTtlSec = 120
	}
	if c.StepTtlSec <= 0 {
		c.StepTtlSec = 30
	}
	return c
}

func (c Config) windowTTL() time.Duration { return time.Duration(c.WindowTtlSec) * time.Second }
func (c Config) stepTTL() time.Duration   { return time.Duration(c.StepTtlSec) * time.Second }

// BrowserController is the controller the intervention manager drives to
// capture context at Initiate time, toggle operator interaction, and
// execute both whitelisted steps and the eventual resume action. No teacher
// analog exists (the teacher never drives a browser); grounded directly on
// spec §4.7.
type BrowserController interface {
	Screenshot(ctx context.Context) (path string, err error)
	CurrentURL(ctx context.Context) (string, error)
	DOMContext(ctx context.Context) (model.Value, error)
	EnableInteraction(ctx context.Context) error
	DisableInteraction(ctx context.Context) error
	Execute(ctx context.Context, cmd model.CommandPayload) (model.Value, error)
}

// ErrAlreadyActive is returned by Initiate when an intervention is already
// in progress.
var ErrAlreadyActive = fmt.Errorf("intervention: already active")

// ErrNotActive is returned by HandleCommand/Resume when no intervention is
// in progress.
var ErrNotActive = fmt.Errorf("intervention: not active")

// ErrInvalidInInterventionMode is returned by HandleCommand when cmd isn't
// whitelisted (spec §7 "invalid_in_intervention_mode").
var ErrInvalidInInterventionMode = fmt.Errorf("intervention: invalid_in_intervention_mode")

// ResumeOptions optionally overrides the stored replayable action.
type ResumeOptions struct {
	ActionOverride *model.CommandPayload
}

// ResumeResult is what Resume returns to the caller (spec §4.7).
type ResumeResult struct {
	Resumed         bool
	ParentCommandID string
	Duration        time.Duration
}

// Manager is the InterventionManager: one mutex around every state
// transition, at most one active InterventionContext at a time.
type Manager struct {
	cfg        Config
	controller BrowserController
	transport  transport.Transport
	met        metrics.Metrics
	log        *logx.Logger

	mu          sync.Mutex
	active      bool
	context     model.InterventionContext
	windowTimer *time.Timer
	stepTimer   *time.Timer
}

// Deps bundles Manager's collaborators.
type Deps struct {
	Controller BrowserController
	Transport  transport.Transport
	Metrics    metrics.Metrics
	Log        *logx.Logger
}

// New constructs a Manager in the Idle state.
func New(cfg Config, deps Deps) *Manager {
	met := deps.Metrics
	if met == nil {
		met = metrics.Noop{}
	}
	log := deps.Log
	if log == nil {
		log = logx.New(nil, "intervention", logx.LevelInfo)
	}
	return &Manager{
		cfg:        cfg.WithDefaults(),
		controller: deps.Controller,
		transport:  deps.Transport,
		met:        met,
		log:        log,
	}
}

// GetCurrentIntervention returns the active context and true, or the zero
// value and false if the manager is Idle (spec §8 "intervention
// exclusivity").
func (m *Manager) GetCurrentIntervention() (model.InterventionContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return model.InterventionContext{}, false
	}
	return m.context, true
}

// Initiate transitions Idle->Active (spec §4.7). It captures a screenshot
// (if configured) and URL/DOM context through the controller, deep-clones
// parentCommand into a replayable action suffixed "_replay", arms the
// window and step timers, and emits the outbound RequireIntervention event.
func (m *Manager) Initiate(ctx context.Context, reason string, parentCommand model.CommandPayload) (model.InterventionContext, error) {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return model.InterventionContext{}, ErrAlreadyActive
	}

	now := time.Now()
	replay := parentCommand
	replay.CommandID = parentCommand.CommandID + "_replay"

	newCtx := model.InterventionContext{
		CommandID:        parentCommand.CommandID,
		ParentCommandID:  parentCommand.CommandID,
		Reason:           reason,
		StartTime:        now,
		WindowTTL:        m.cfg.windowTTL(),
		StepTTL:          m.cfg.stepTTL(),
		LastStepTime:     now,
		ParentCommand:    parentCommand,
		ReplayableAction: replay,
	}

	if m.controller != nil {
		if m.cfg.AttachScreenshot {
			if path, err := m.controller.Screenshot(ctx); err != nil {
				m.log.Warn("intervention_screenshot_failed command_id=%s error=%v", parentCommand.CommandID, err)
			} else {
				newCtx.ScreenshotPath = path
			}
		}
		if url, err := m.controller.CurrentURL(ctx); err != nil {
			m.log.Warn("intervention_url_failed command_id=%s error=%v", parentCommand.CommandID, err)
		} else {
			newCtx.URL = url
		}
		if dom, err := m.controller.DOMContext(ctx); err != nil {
			m.log.Warn("intervention_dom_context_failed command_id=%s error=%v", parentCommand.CommandID, err)
		} else {
			newCtx.DOMContext = dom
		}
		if err := m.controller.EnableInteraction(ctx); err != nil {
			m.log.Warn("intervention_enable_interaction_failed command_id=%s error=%v", parentCommand.CommandID, err)
		}
	}

	m.context = newCtx
	m.active = true
	m.windowTimer = time.AfterFunc(newCtx.WindowTTL, m.onWindowTimeout)
	m.stepTimer = time.AfterFunc(newCtx.StepTTL, m.onStepTimeout)
	m.mu.Unlock()

	m.met.DroneInterventions(reason)

	resumeToken := uuid.NewString()
	payload := model.InterventionPayload{
		CommandID:   newCtx.CommandID,
		Type:        "RequireIntervention",
		Reason:      reason,
		Data:        newCtx.DOMContext,
		ResumeToken: resumeToken,
		RequestedAt: now.UTC().Format(time.RFC3339),
	}
	if m.transport != nil {
		if err := m.transport.Publish(ctx, transport.OperatorsGroup, transport.Message{Kind: transport.KindRequireIntervention, Payload: payload}); err != nil {
			m.log.Warn("intervention_publish_failed command_id=%s error=%v", newCtx.CommandID, err)
		}
	}

	return newCtx, nil
}

// Resume transitions Active->Idle (spec §4.7): cancels both timers,
// disables operator interaction, executes the override (if given) or the
// stored replayable action, and records the window duration histogram.
// Replay failures are logged, not propagated — the window has already
// closed by the time this runs.
func (m *Manager) Resume(ctx context.Context, options ResumeOptions) (ResumeResult, error) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return ResumeResult{}, ErrNotActive
	}
	current := m.context
	m.stopTimersLocked()
	m.active = false
	m.mu.Unlock()

	if m.controller != nil {
		if err := m.controller.DisableInteraction(ctx); err != nil {
			m.log.Warn("intervention_disable_interaction_failed command_id=%s error=%v", current.CommandID, err)
		}
	}

	action := current.ReplayableAction
	if options.ActionOverride != nil {
		action = *options.ActionOverride
	}
	if m.controller != nil {
		if _, err := m.controller.Execute(ctx, action); err != nil {
			m.log.Warn("intervention_resume_execute_failed command_id=%s error=%v", current.CommandID, err)
		}
	}

	duration := time.Since(current.StartTime)
	m.met.DroneInterventionWindowMs(float64(duration.Milliseconds()))

	return ResumeResult{
		Resumed:         true,
		ParentCommandID: current.ParentCommandID,
		Duration:        duration,
	}, nil
}

// stopTimersLocked cancels both timers. Caller must hold m.mu.
func (m *Manager) stopTimersLocked() {
	if m.windowTimer != nil {
		m.windowTimer.Stop()
	}
	if m.stepTimer != nil {
		m.stepTimer.Stop()
	}
}

// onWindowTimeout fires when the window timer expires without a Resume.
func (m *Manager) onWindowTimeout() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	commandID := m.context.CommandID
	m.stopTimersLocked()
	m.active = false
	m.mu.Unlock()

	if m.controller != nil {
		if err := m.controller.DisableInteraction(context.Background()); err != nil {
			m.log.Warn("intervention_window_timeout_disable_failed command_id=%s error=%v", commandID, err)
		}
	}
	m.log.Warn("intervention_window_timeout command_id=%s", commandID)
	m.met.DroneInterventionTimeouts()
}

// onStepTimeout fires when the step timer expires; it double-checks that
// stepTTL has genuinely elapsed since lastStepTime before shutting down,
// since a Click extending the timer and this firing can race.
func (m *Manager) onStepTimeout() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	if time.Since(m.context.LastStepTime) < m.context.StepTTL {
		remaining := m.context.StepTTL - time.Since(m.context.LastStepTime)
		m.stepTimer = time.AfterFunc(remaining, m.onStepTimeout)
		m.mu.Unlock()
		return
	}
	commandID := m.context.CommandID
	m.stopTimersLocked()
	m.active = false
	m.mu.Unlock()

	if m.controller != nil {
		if err := m.controller.DisableInteraction(context.Background()); err != nil {
			m.log.Warn("intervention_step_timeout_disable_failed command_id=%s error=%v", commandID, err)
		}
	}
	m.log.Warn("intervention_step_timeout command_id=%s", commandID)
	m.met.DroneInterventionStepTimeouts()
}
