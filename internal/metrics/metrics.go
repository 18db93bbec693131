// Package metrics declares the Prometheus instruments named throughout
// spec.md §4 and wires them behind a small interface so components never
// import prometheus directly — they call Metrics methods, and tests can
// substitute a no-op implementation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the full set of gauges/counters the scheduler, domain limiter
// and intervention manager emit.
type Metrics interface {
	QueueGlobalLength(n int)
	QueuePerDroneLength(droneID string, n int)

	TasksEnqueued()
	TasksQueued(droneID string)
	TasksDispatched(droneID string)
	TasksRequeued()

	CommandsAckTimeout(droneID string)
	CommandsAcknowledged(droneID string)
	CommandsCompleted(droneID string)
	CommandsFailed(droneID string)

	PersonaMissingRetry()
	PersonaMissingFailed()
	PersonaMissingRequeued()

	DomainSessionsActive(domain string, n int)

	DroneInterventions(reason string)
	DroneInterventionWindowMs(ms float64)
	DroneInterventionTimeouts()
	DroneInterventionStepTimeouts()
}

// Prometheus is the production Metrics implementation, registered against a
// caller-supplied registry (typically prometheus.DefaultRegisterer).
type Prometheus struct {
	queueGlobalLength    prometheus.Gauge
	queuePerDroneLength  *prometheus.GaugeVec
	tasksEnqueuedTotal   prometheus.Counter
	tasksQueuedTotal     *prometheus.CounterVec
	tasksDispatchedTotal *prometheus.CounterVec
	tasksRequeuedTotal   prometheus.Counter

	commandsAckTimeoutTotal   *prometheus.CounterVec
	commandsAcknowledgedTotal *prometheus.CounterVec
	commandsCompletedTotal    *prometheus.CounterVec
	commandsFailedTotal       *prometheus.CounterVec

	tasksPersonaMissingRetryTotal    prometheus.Counter
	tasksPersonaMissingFailedTotal   prometheus.Counter
	tasksPersonaMissingRequeuedTotal prometheus.Counter

	domainSessionsActive *prometheus.GaugeVec

	droneInterventionsTotal     *prometheus.CounterVec
	droneInterventionWindowMs   prometheus.Histogram
	droneInterventionTimeouts   prometheus.Counter
	droneInterventionStepTimeouts prometheus.Counter
}

// NewPrometheus constructs and registers every instrument against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registerer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		queueGlobalLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_global_length",
			Help: "Current length of the global ready queue.",
		}),
		queuePerDroneLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_per_drone_length",
			Help: "Current length of each per-drone dispatch queue.",
		}, []string{"drone_id"}),
		tasksEnqueuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasks_enqueued_total",
			Help: "Tasks accepted onto the ready queue.",
		}),
		tasksQueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasks_queued_total",
			Help: "Tasks handed off to a per-drone queue.",
		}, []string{"drone_id"}),
		tasksDispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasks_dispatched_total",
			Help: "Tasks published to a drone as a command.",
		}, []string{"drone_id"}),
		tasksRequeuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasks_requeued_total",
			Help: "Tasks returned to a queue after a dispatch-time failure.",
		}),
		commandsAckTimeoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commands_ack_timeout_total",
			Help: "Commands whose acknowledgement never arrived within AckTimeoutSec.",
		}, []string{"drone_id"}),
		commandsAcknowledgedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commands_acknowledged_total",
			Help: "Commands acknowledged by a drone.",
		}, []string{"drone_id"}),
		commandsCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commands_completed_total",
			Help: "Commands that reached a successful terminal state.",
		}, []string{"drone_id"}),
		commandsFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commands_failed_total",
			Help: "Commands that reached a failed terminal state.",
		}, []string{"drone_id"}),
		tasksPersonaMissingRetryTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasks_persona_missing_retry_total",
			Help: "Persona-missing retry attempts scheduled.",
		}),
		tasksPersonaMissingFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasks_persona_missing_failed_total",
			Help: "Tasks abandoned after exhausting persona-missing retries.",
		}),
		tasksPersonaMissingRequeuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasks_persona_missing_requeued_total",
			Help: "Tasks returned to the ready queue after the persona became available.",
		}),
		domainSessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "domain_sessions_active",
			Help: "Active domain leases held, by registrable domain.",
		}, []string{"domain"}),
		droneInterventionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drone_interventions_total",
			Help: "Interventions initiated, by reason.",
		}, []string{"reason"}),
		droneInterventionWindowMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drone_intervention_window_ms",
			Help:    "Time an intervention stayed active before resume or timeout, in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(100, 2, 12),
		}),
		droneInterventionTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drone_intervention_timeouts",
			Help: "Interventions that expired via the window timer.",
		}),
		droneInterventionStepTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drone_intervention_step_timeouts",
			Help: "Interventions that expired via the step timer.",
		}),
	}

	reg.MustRegister(
		p.queueGlobalLength, p.queuePerDroneLength,
		p.tasksEnqueuedTotal, p.tasksQueuedTotal, p.tasksDispatchedTotal, p.tasksRequeuedTotal,
		p.commandsAckTimeoutTotal, p.commandsAcknowledgedTotal, p.commandsCompletedTotal, p.commandsFailedTotal,
		p.tasksPersonaMissingRetryTotal, p.tasksPersonaMissingFailedTotal, p.tasksPersonaMissingRequeuedTotal,
		p.domainSessionsActive,
		p.droneInterventionsTotal, p.droneInterventionWindowMs, p.droneInterventionTimeouts, p.droneInterventionStepTimeouts,
	)
	return p
}

func (p *Prometheus) QueueGlobalLength(n int) { p.queueGlobalLength.Set(float64(n)) }

func (p *Prometheus) QueuePerDroneLength(droneID string, n int) {
	p.queuePerDroneLength.WithLabelValues(droneID).Set(float64(n))
}

func (p *Prometheus) TasksEnqueued() { p.tasksEnqueuedTotal.Inc() }

func (p *Prometheus) TasksQueued(droneID string) { p.tasksQueuedTotal.WithLabelValues(droneID).Inc() }

func (p *Prometheus) TasksDispatched(droneID string) {
	p.tasksDispatchedTotal.WithLabelValues(droneID).Inc()
}

func (p *Prometheus) TasksRequeued() { p.tasksRequeuedTotal.Inc() }

func (p *Prometheus) CommandsAckTimeout(droneID string) {
	p.commandsAckTimeoutTotal.WithLabelValues(droneID).Inc()
}

func (p *Prometheus) CommandsAcknowledged(droneID string) {
	p.commandsAcknowledgedTotal.WithLabelValues(droneID).Inc()
}

func (p *Prometheus) CommandsCompleted(droneID string) {
	p.commandsCompletedTotal.WithLabelValues(droneID).Inc()
}

func (p *Prometheus) CommandsFailed(droneID string) {
	p.commandsFailedTotal.WithLabelValues(droneID).Inc()
}

func (p *Prometheus) PersonaMissingRetry()    { p.tasksPersonaMissingRetryTotal.Inc() }
func (p *Prometheus) PersonaMissingFailed()   { p.tasksPersonaMissingFailedTotal.Inc() }
func (p *Prometheus) PersonaMissingRequeued() { p.tasksPersonaMissingRequeuedTotal.Inc() }

func (p *Prometheus) DomainSessionsActive(domain string, n int) {
	p.domainSessionsActive.WithLabelValues(domain).Set(float64(n))
}

func (p *Prometheus) DroneInterventions(reason string) {
	p.droneInterventionsTotal.WithLabelValues(reason).Inc()
}

func (p *Prometheus) DroneInterventionWindowMs(ms float64) { p.droneInterventionWindowMs.Observe(ms) }
func (p *Prometheus) DroneInterventionTimeouts()            { p.droneInterventionTimeouts.Inc() }
func (p *Prometheus) DroneInterventionStepTimeouts()        { p.droneInterventionStepTimeouts.Inc() }

// Noop discards every observation; used by components in tests that don't
// care about metrics wiring.
type Noop struct{}

func (Noop) QueueGlobalLength(int)               {}
func (Noop) QueuePerDroneLength(string, int)     {}
func (Noop) TasksEnqueued()                      {}
func (Noop) TasksQueued(string)                  {}
func (Noop) TasksDispatched(string)              {}
func (Noop) TasksRequeued()                      {}
func (Noop) CommandsAckTimeout(string)           {}
func (Noop) CommandsAcknowledged(string)         {}
func (Noop) CommandsCompleted(string)            {}
func (Noop) CommandsFailed(string)               {}
func (Noop) PersonaMissingRetry()                {}
func (Noop) PersonaMissingFailed()               {}
func (Noop) PersonaMissingRequeued()             {}
func (Noop) DomainSessionsActive(string, int)    {}
func (Noop) DroneInterventions(string)           {}
func (Noop) DroneInterventionWindowMs(float64)   {}
func (Noop) DroneInterventionTimeouts()          {}
func (Noop) DroneInterventionStepTimeouts()      {}
