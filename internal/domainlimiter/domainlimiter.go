// Package domainlimiter implements the DomainLimiter described in spec.md
// §4.2: a non-blocking per-(drone, registrable-domain) admission gate that
// enforces global concurrency, per-drone concurrency, QPS, and burst/
// cooldown limits, in the spirit of the teacher's LeaseManager but guarding
// concurrent domain sessions instead of queue-entry ownership.
package domainlimiter

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dronefleet/orchestrator/internal/logx"
	"github.com/dronefleet/orchestrator/internal/metrics"
)

// Config holds the tunables from spec.md §6 ("Limits").
type Config struct {
	GlobalMaxConcurrentSessions  int
	PerDomainConcurrencyPerDrone int
	PerDomainQPSPerDrone         float64
	PerDomainBurstLimit          int
	PerDomainCooldownSeconds     int
	DomainStateTTL               time.Duration
}

// globalState tracks a registrable domain's total concurrency across all
// drones. Each instance owns its own mutex so that TryAcquire can hold the
// global lock and the drone lock together without a single repo-wide mutex
// serializing unrelated domains.
type globalState struct {
	mu          sync.Mutex
	concurrency int
	lastTouched time.Time
}

// droneState tracks one (drone, domain) pair's concurrency, sliding QPS
// window, burst window and cooldown.
type droneState struct {
	mu             sync.Mutex
	concurrency    int
	recentRequests []time.Time
	burstWindow    []time.Time
	cooldownUntil  time.Time
	lastTouched    time.Time
}

type key struct {
	drone  string
	domain string
}

// Lease is a handle returned by TryAcquire. Release is idempotent: calling
// it more than once is a no-op after the first call.
type Lease struct {
	limiter *Limiter
	drone   string
	domain  string
	once    sync.Once
}

// Release decrements both the global and per-drone concurrency counters and
// touches their timestamps. Safe to call from multiple goroutines and safe
// to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.limiter.release(l.drone, l.domain)
	})
}

// Limiter is the DomainLimiter. Zero value is not usable; construct with
// New.
type Limiter struct {
	cfg atomic.Value // Config
	log *logx.Logger
	met metrics.Metrics

	// mapMu guards creation/deletion of entries in global and perDrone.
	// It is never held across a call into globalState/droneState's own
	// mutex, so it never participates in the global-then-drone ordering
	// below — only the two entry-level locks do.
	mapMu    sync.Mutex
	global   map[string]*globalState
	perDrone map[key]*droneState

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New constructs a Limiter.
func New(cfg Config, log *logx.Logger, met metrics.Metrics) *Limiter {
	if met == nil {
		met = metrics.Noop{}
	}
	if log == nil {
		log = logx.New(nil, "domainlimiter", logx.LevelInfo)
	}
	lm := &Limiter{
		log:       log,
		met:       met,
		global:    make(map[string]*globalState),
		perDrone:  make(map[key]*droneState),
		stopSweep: make(chan struct{}),
	}
	lm.cfg.Store(cfg)
	return lm
}

// config returns the currently active tunables. Safe for concurrent use
// with ApplyConfig.
func (lm *Limiter) config() Config {
	return lm.cfg.Load().(Config)
}

// ApplyConfig swaps in new tunables, taking effect for every TryAcquire and
// sweep decision from this point on. It does not retroactively evict
// sessions admitted under the previous config.
func (lm *Limiter) ApplyConfig(cfg Config) {
	lm.cfg.Store(cfg)
}

// DenyReason explains why TryAcquire returned a nil lease.
type DenyReason string

const (
	DenyNone     DenyReason = ""
	DenyCooldown DenyReason = "cooldown"
	DenyGlobal   DenyReason = "global_concurrency"
	DenyPerDrone DenyReason = "per_drone_concurrency"
	DenyQPS      DenyReason = "qps"
)

func (lm *Limiter) lookupGlobal(domain string) *globalState {
	lm.mapMu.Lock()
	defer lm.mapMu.Unlock()
	g, ok := lm.global[domain]
	if !ok {
		g = &globalState{}
		lm.global[domain] = g
	}
	return g
}

func (lm *Limiter) lookupDrone(k key) *droneState {
	lm.mapMu.Lock()
	defer lm.mapMu.Unlock()
	d, ok := lm.perDrone[k]
	if !ok {
		d = &droneState{}
		lm.perDrone[k] = d
	}
	return d
}

// TryAcquire is non-blocking: it never waits, and returns (nil, reason) if
// admission is denied for any of the rules in spec §4.2. The global lock is
// always taken before the drone lock, a fixed order maintained everywhere
// this limiter touches both, to avoid deadlock against concurrent callers
// for different drones on the same domain.
func (lm *Limiter) TryAcquire(droneID, domain string) (*Lease, DenyReason) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	now := time.Now()

	g := lm.lookupGlobal(domain)
	d := lm.lookupDrone(key{drone: droneID, domain: domain})

	g.mu.Lock()
	defer g.mu.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg := lm.config()
	d.recentRequests = trimOlderThan(d.recentRequests, now, time.Second)

	if now.Before(d.cooldownUntil) {
		return nil, DenyCooldown
	}
	if cfg.GlobalMaxConcurrentSessions > 0 && g.concurrency >= cfg.GlobalMaxConcurrentSessions {
		return nil, DenyGlobal
	}
	if cfg.PerDomainConcurrencyPerDrone > 0 && d.concurrency >= cfg.PerDomainConcurrencyPerDrone {
		return nil, DenyPerDrone
	}
	if cfg.PerDomainQPSPerDrone > 0 && float64(len(d.recentRequests)) >= cfg.PerDomainQPSPerDrone {
		return nil, DenyQPS
	}

	d.recentRequests = append(d.recentRequests, now)
	if cfg.PerDomainBurstLimit > 0 {
		cooldownWindow := time.Duration(cfg.PerDomainCooldownSeconds) * time.Second
		d.burstWindow = trimOlderThan(d.burstWindow, now, cooldownWindow)
		d.burstWindow = append(d.burstWindow, now)
		if len(d.burstWindow) >= cfg.PerDomainBurstLimit {
			d.cooldownUntil = now.Add(cooldownWindow)
			d.burstWindow = nil
			lm.log.Warn("domain_cooldown_entered drone=%s domain=%s until=%s", droneID, domain, d.cooldownUntil.Format(time.RFC3339))
		}
	}

	g.concurrency++
	g.lastTouched = now
	d.concurrency++
	d.lastTouched = now

	lm.met.DomainSessionsActive(domain, g.concurrency)

	return &Lease{limiter: lm, drone: droneID, domain: domain}, DenyNone
}

func (lm *Limiter) release(droneID, domain string) {
	g := lm.lookupGlobal(domain)
	d := lm.lookupDrone(key{drone: droneID, domain: domain})

	g.mu.Lock()
	defer g.mu.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if g.concurrency > 0 {
		g.concurrency--
	}
	g.lastTouched = now
	lm.met.DomainSessionsActive(domain, g.concurrency)

	if d.concurrency > 0 {
		d.concurrency--
	}
	d.lastTouched = now
}

func trimOlderThan(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append([]time.Time(nil), times[i:]...)
}

// RunSweeper blocks, periodically removing domain/drone states that have
// gone idle (concurrency 0 and untouched for DomainStateTTL), until Stop is
// called. Interval defaults to min(TTL/4, 60s) per spec §4.2 when interval
// <= 0 is passed.
func (lm *Limiter) RunSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = lm.config().DomainStateTTL / 4
		if interval > 60*time.Second || interval <= 0 {
			interval = 60 * time.Second
		}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			lm.sweep()
		case <-lm.stopSweep:
			return
		}
	}
}

// Stop halts a running RunSweeper goroutine. Safe to call more than once;
// only the first call has an effect.
func (lm *Limiter) Stop() {
	lm.sweepOnce.Do(func() { close(lm.stopSweep) })
}

func (lm *Limiter) sweep() {
	lm.mapMu.Lock()
	defer lm.mapMu.Unlock()

	ttl := lm.config().DomainStateTTL
	now := time.Now()
	for domain, g := range lm.global {
		g.mu.Lock()
		stale := g.concurrency == 0 && now.Sub(g.lastTouched) > ttl
		g.mu.Unlock()
		if stale {
			delete(lm.global, domain)
		}
	}
	for k, d := range lm.perDrone {
		d.mu.Lock()
		stale := d.concurrency == 0 && now.Sub(d.lastTouched) > ttl
		d.mu.Unlock()
		if stale {
			delete(lm.perDrone, k)
		}
	}
}
