package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dronefleet/orchestrator/internal/config"
	"github.com/dronefleet/orchestrator/internal/domainlimiter"
	"github.com/dronefleet/orchestrator/internal/intervention"
	"github.com/dronefleet/orchestrator/internal/logx"
	"github.com/dronefleet/orchestrator/internal/metrics"
	"github.com/dronefleet/orchestrator/internal/model"
)

func TestNewHostWiresAllComponents(t *testing.T) {
	dir := t.TempDir()
	personaDir := filepath.Join(dir, "personas")
	if err := os.MkdirAll(personaDir, 0755); err != nil {
		t.Fatalf("mkdir persona dir: %v", err)
	}
	deadLetterDir := filepath.Join(dir, "dead_letters")

	cfg := config.Defaults()
	log := logx.New(nil, "test", logx.LevelError)
	met := metrics.NewPrometheus(prometheus.NewRegistry())

	h, err := newHost(cfg, hostDeps{
		Log:           log,
		Metrics:       met,
		PersonaDir:    personaDir,
		DeadLetterDir: deadLetterDir,
		APIKey:        "secret",
	})
	if err != nil {
		t.Fatalf("newHost failed: %v", err)
	}
	if h.scheduler == nil || h.intervention == nil || h.hub == nil || h.limiter == nil {
		t.Fatal("expected all host components to be non-nil")
	}
}

func TestHostInterventionManagerInitiatesFromMinimalParentCommand(t *testing.T) {
	// Exercises the same construction the OnInterventionRequired hook in
	// newHost performs, since the hook itself is a private closure.
	log := logx.New(nil, "test", logx.LevelError)
	met := metrics.NewPrometheus(prometheus.NewRegistry())

	cfg := config.Defaults().InterventionManagerConfig()
	mgr := intervention.New(cfg, intervention.Deps{Log: log, Metrics: met})

	payload := model.InterventionPayload{CommandID: "cmd-1", DroneID: "drone-1", Type: "navigate", Reason: "captcha"}
	parent := model.CommandPayload{CommandID: payload.CommandID, Type: payload.Type}

	if _, err := mgr.Initiate(context.Background(), payload.Reason, parent); err != nil {
		t.Fatalf("Initiate failed: %v", err)
	}
}

func TestApplyConfigUpdatesLimiterTunables(t *testing.T) {
	dir := t.TempDir()
	personaDir := filepath.Join(dir, "personas")
	os.MkdirAll(personaDir, 0755)
	deadLetterDir := filepath.Join(dir, "dead_letters")

	cfg := config.Defaults()
	log := logx.New(nil, "test", logx.LevelError)
	met := metrics.NewPrometheus(prometheus.NewRegistry())

	h, err := newHost(cfg, hostDeps{
		Log:           log,
		Metrics:       met,
		PersonaDir:    personaDir,
		DeadLetterDir: deadLetterDir,
		APIKey:        "secret",
	})
	if err != nil {
		t.Fatalf("newHost failed: %v", err)
	}

	lease1, reason := h.limiter.TryAcquire("drone-1", "example.com")
	if lease1 == nil || reason != "" {
		t.Fatalf("expected first acquire to succeed, got reason %q", reason)
	}
	if _, reason := h.limiter.TryAcquire("drone-1", "example.com"); reason != domainlimiter.DenyPerDrone {
		t.Fatalf("expected default per-drone concurrency of 1 to deny a second session, got %q", reason)
	}

	reloaded := cfg
	reloaded.Limits.PerDomain.ConcurrencyPerDrone = 2
	h.applyConfig(reloaded)

	if lease2, reason := h.limiter.TryAcquire("drone-1", "example.com"); lease2 == nil || reason != "" {
		t.Fatalf("expected acquire to succeed after raising per-drone concurrency, got reason %q", reason)
	}
}
