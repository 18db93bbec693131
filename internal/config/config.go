// Package config loads and validates the orchestrator's YAML configuration
// (spec.md §6) and bridges it into the typed Config structs each component
// package declares for itself. Grounded on the teacher's model.Config (one
// struct per concern, yaml tags, loaded with gopkg.in/yaml.v3) and its
// cmd/maestro loadConfig helper.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dronefleet/orchestrator/internal/domainlimiter"
	"github.com/dronefleet/orchestrator/internal/intervention"
	"github.com/dronefleet/orchestrator/internal/scheduler"
)

// Config is the root document loaded from the orchestrator's config.yaml.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Scheduling  SchedulingConfig  `yaml:"scheduling"`
	Limits      LimitsConfig      `yaml:"limits"`
	Intervention InterventionConfig `yaml:"intervention"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	ApiKey string `yaml:"api_key"`
}

type SchedulingConfig struct {
	ReadyQueue   ReadyQueueConfig   `yaml:"ready_queue"`
	PerDroneQueue PerDroneQueueConfig `yaml:"per_drone_queue"`

	MaxInFlightPerDrone int `yaml:"max_in_flight_per_drone"`

	AckTimeoutSec       int `yaml:"ack_timeout_sec"`
	HeartbeatExpectSec  int `yaml:"heartbeat_expect_sec"`
	DisconnectGraceSec  int `yaml:"disconnect_grace_sec"`
	DispatchLoopDelayMs int `yaml:"dispatch_loop_delay_ms"`

	PersonaMissingMaxRetries    int `yaml:"persona_missing_max_retries"`
	PersonaMissingBaseDelaySec  int `yaml:"persona_missing_base_delay_sec"`
	PersonaMissingMaxBackoffSec int `yaml:"persona_missing_max_backoff_sec"`
}

type ReadyQueueConfig struct {
	Capacity int `yaml:"capacity"`
}

type PerDroneQueueConfig struct {
	Capacity int `yaml:"capacity"`
}

type LimitsConfig struct {
	Global            GlobalLimitsConfig `yaml:"global"`
	PerDomain         PerDomainConfig    `yaml:"per_domain"`
	DomainStateTtlSeconds int            `yaml:"domain_state_ttl_seconds"`
}

type GlobalLimitsConfig struct {
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`
}

type PerDomainConfig struct {
	ConcurrencyPerDrone int     `yaml:"concurrency_per_drone"`
	QpsPerDrone         float64 `yaml:"qps_per_drone"`
	BurstLimit          int     `yaml:"burst_limit"`
	CooldownSeconds     int     `yaml:"cooldown_seconds"`
}

type InterventionConfig struct {
	AttachScreenshot bool `yaml:"attach_screenshot"`
	WindowTtlSec     int  `yaml:"window_ttl_sec"`
	StepTtlSec       int  `yaml:"step_ttl_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// WithDefaults returns a copy of c with every zero-valued numeric field
// replaced by its spec.md §6 default. Booleans and strings are left as
// loaded — AttachScreenshot's spec default of true only applies when the
// key is altogether absent from the file, which Load handles by seeding
// Defaults() before unmarshalling over it.
func (c Config) WithDefaults() Config {
	if c.Scheduling.ReadyQueue.Capacity <= 0 {
		c.Scheduling.ReadyQueue.Capacity = 1000
	}
	if c.Scheduling.PerDroneQueue.Capacity <= 0 {
		c.Scheduling.PerDroneQueue.Capacity = 10
	}
	if c.Scheduling.MaxInFlightPerDrone <= 0 {
		c.Scheduling.MaxInFlightPerDrone = 1
	}
	if c.Scheduling.AckTimeoutSec <= 0 {
		c.Scheduling.AckTimeoutSec = 20
	}
	if c.Scheduling.HeartbeatExpectSec <= 0 {
		c.Scheduling.HeartbeatExpectSec = 30
	}
	if c.Scheduling.DisconnectGraceSec <= 0 {
		c.Scheduling.DisconnectGraceSec = 60
	}
	if c.Scheduling.DispatchLoopDelayMs <= 0 {
		c.Scheduling.DispatchLoopDelayMs = 100
	}
	if c.Scheduling.PersonaMissingMaxRetries <= 0 {
		c.Scheduling.PersonaMissingMaxRetries = 5
	}
	if c.Scheduling.PersonaMissingBaseDelaySec <= 0 {
		c.Scheduling.PersonaMissingBaseDelaySec = 5
	}
	if c.Scheduling.PersonaMissingMaxBackoffSec <= 0 {
		c.Scheduling.PersonaMissingMaxBackoffSec = 120
	}
	if c.Limits.Global.MaxConcurrentSessions <= 0 {
		c.Limits.Global.MaxConcurrentSessions = 25
	}
	if c.Limits.PerDomain.ConcurrencyPerDrone <= 0 {
		c.Limits.PerDomain.ConcurrencyPerDrone = 1
	}
	if c.Limits.PerDomain.QpsPerDrone <= 0 {
		c.Limits.PerDomain.QpsPerDrone = 2.0
	}
	if c.Limits.PerDomain.BurstLimit <= 0 {
		c.Limits.PerDomain.BurstLimit = 3
	}
	if c.Limits.PerDomain.CooldownSeconds <= 0 {
		c.Limits.PerDomain.CooldownSeconds = 30
	}
	if c.Limits.DomainStateTtlSeconds <= 0 {
		c.Limits.DomainStateTtlSeconds = 600
	}
	if c.Intervention.WindowTtlSec <= 0 {
		c.Intervention.WindowTtlSec = 120
	}
	if c.Intervention.StepTtlSec <= 0 {
		c.Intervention.StepTtlSec = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return c
}

// Defaults returns a Config with every field set to its spec.md §6 default,
// including AttachScreenshot=true — the one default WithDefaults can't
// express since false is also zero for a bool.
func Defaults() Config {
	c := Config{}.WithDefaults()
	c.Intervention.AttachScreenshot = true
	return c
}

// Load reads and parses a YAML config file at path, seeding Defaults()
// first so keys absent from the file keep their spec default rather than
// the Go zero value.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects a config.yaml with contradictory values that WithDefaults
// can't catch (negative-after-default is impossible): a per-drone domain
// concurrency above the global session limit, or a persona-missing base
// delay above the maximum backoff.
func (c Config) Validate() error {
	if c.Limits.PerDomain.ConcurrencyPerDrone > c.Limits.Global.MaxConcurrentSessions {
		return fmt.Errorf("limits.per_domain.concurrency_per_drone (%d) exceeds limits.global.max_concurrent_sessions (%d)",
			c.Limits.PerDomain.ConcurrencyPerDrone, c.Limits.Global.MaxConcurrentSessions)
	}
	if c.Scheduling.PersonaMissingBaseDelaySec > c.Scheduling.PersonaMissingMaxBackoffSec {
		return fmt.Errorf("scheduling.persona_missing_base_delay_sec (%d) exceeds scheduling.persona_missing_max_backoff_sec (%d)",
			c.Scheduling.PersonaMissingBaseDelaySec, c.Scheduling.PersonaMissingMaxBackoffSec)
	}
	return nil
}

// SchedulerConfig bridges to scheduler.Config.
func (c Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		ReadyQueueCapacity:          c.Scheduling.ReadyQueue.Capacity,
		PerDroneQueueCapacity:       c.Scheduling.PerDroneQueue.Capacity,
		MaxInFlightPerDrone:         c.Scheduling.MaxInFlightPerDrone,
		AckTimeoutSec:               c.Scheduling.AckTimeoutSec,
		HeartbeatExpectSec:          c.Scheduling.HeartbeatExpectSec,
		DisconnectGraceSec:          c.Scheduling.DisconnectGraceSec,
		DispatchLoopDelayMs:         c.Scheduling.DispatchLoopDelayMs,
		PersonaMissingMaxRetries:    c.Scheduling.PersonaMissingMaxRetries,
		PersonaMissingBaseDelaySec:  c.Scheduling.PersonaMissingBaseDelaySec,
		PersonaMissingMaxBackoffSec: c.Scheduling.PersonaMissingMaxBackoffSec,
	}
}

// DomainLimiterConfig bridges to domainlimiter.Config.
func (c Config) DomainLimiterConfig() domainlimiter.Config {
	return domainlimiter.Config{
		GlobalMaxConcurrentSessions:  c.Limits.Global.MaxConcurrentSessions,
		PerDomainConcurrencyPerDrone: c.Limits.PerDomain.ConcurrencyPerDrone,
		PerDomainQPSPerDrone:         c.Limits.PerDomain.QpsPerDrone,
		PerDomainBurstLimit:          c.Limits.PerDomain.BurstLimit,
		PerDomainCooldownSeconds:     c.Limits.PerDomain.CooldownSeconds,
		DomainStateTTL:               time.Duration(c.Limits.DomainStateTtlSeconds) * time.Second,
	}
}

// InterventionManagerConfig bridges to intervention.Config.
func (c Config) InterventionManagerConfig() intervention.Config {
	return intervention.Config{
		AttachScreenshot: c.Intervention.AttachScreenshot,
		WindowTtlSec:     c.Intervention.WindowTtlSec,
		StepTtlSec:       c.Intervention.StepTtlSec,
	}
}
