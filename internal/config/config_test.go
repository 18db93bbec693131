package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsMatchSpec(t *testing.T) {
	c := Defaults()
	if c.Scheduling.ReadyQueue.Capacity != 1000 {
		t.Fatalf("ready queue capacity default = %d, want 1000", c.Scheduling.ReadyQueue.Capacity)
	}
	if c.Scheduling.AckTimeoutSec != 20 {
		t.Fatalf("ack timeout default = %d, want 20", c.Scheduling.AckTimeoutSec)
	}
	if c.Limits.Global.MaxConcurrentSessions != 25 {
		t.Fatalf("global max concurrent sessions default = %d, want 25", c.Limits.Global.MaxConcurrentSessions)
	}
	if c.Limits.PerDomain.QpsPerDrone != 2.0 {
		t.Fatalf("per-domain qps default = %v, want 2.0", c.Limits.PerDomain.QpsPerDrone)
	}
	if !c.Intervention.AttachScreenshot {
		t.Fatal("expected AttachScreenshot to default true")
	}
	if c.Intervention.WindowTtlSec != 120 || c.Intervention.StepTtlSec != 30 {
		t.Fatalf("unexpected intervention timeouts: %+v", c.Intervention)
	}
}

func TestLoadFillsMissingKeysWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
server:
  api_key: "secret"
scheduling:
  ack_timeout_sec: 5
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ApiKey != "secret" {
		t.Fatalf("expected api key to round-trip, got %q", cfg.Server.ApiKey)
	}
	if cfg.Scheduling.AckTimeoutSec != 5 {
		t.Fatalf("expected overridden ack timeout of 5, got %d", cfg.Scheduling.AckTimeoutSec)
	}
	if cfg.Scheduling.ReadyQueue.Capacity != 1000 {
		t.Fatalf("expected untouched ready queue capacity to fall back to default, got %d", cfg.Scheduling.ReadyQueue.Capacity)
	}
	if !cfg.Intervention.AttachScreenshot {
		t.Fatal("expected AttachScreenshot default to survive a partial file")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error loading a nonexistent config file")
	}
}

func TestValidateRejectsPerDomainExceedingGlobal(t *testing.T) {
	cfg := Defaults()
	cfg.Limits.PerDomain.ConcurrencyPerDrone = 50
	cfg.Limits.Global.MaxConcurrentSessions = 10
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when per-domain concurrency exceeds the global cap")
	}
}

func TestSchedulerConfigBridge(t *testing.T) {
	cfg := Defaults()
	sc := cfg.SchedulerConfig()
	if sc.ReadyQueueCapacity != cfg.Scheduling.ReadyQueue.Capacity {
		t.Fatalf("scheduler config ready queue capacity mismatch: %d != %d", sc.ReadyQueueCapacity, cfg.Scheduling.ReadyQueue.Capacity)
	}
	if sc.PersonaMissingMaxRetries != cfg.Scheduling.PersonaMissingMaxRetries {
		t.Fatalf("scheduler config persona retry mismatch")
	}
}

func TestDomainLimiterConfigBridge(t *testing.T) {
	cfg := Defaults()
	dc := cfg.DomainLimiterConfig()
	if dc.GlobalMaxConcurrentSessions != cfg.Limits.Global.MaxConcurrentSessions {
		t.Fatalf("domain limiter global cap mismatch")
	}
	if dc.DomainStateTTL.Seconds() != float64(cfg.Limits.DomainStateTtlSeconds) {
		t.Fatalf("domain limiter TTL mismatch: %v != %ds", dc.DomainStateTTL, cfg.Limits.DomainStateTtlSeconds)
	}
}

func TestInterventionConfigBridge(t *testing.T) {
	cfg := Defaults()
	ic := cfg.InterventionManagerConfig()
	if ic.WindowTtlSec != cfg.Intervention.WindowTtlSec || ic.StepTtlSec != cfg.Intervention.StepTtlSec {
		t.Fatalf("intervention config mismatch: %+v vs %+v", ic, cfg.Intervention)
	}
}
