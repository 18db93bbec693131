package model

// ErrorKind tags the soft-failure taxonomy of spec §7. It is used for
// logging and dead-letter reason strings, not as a Go error callers branch
// on — the dispatch/worker loops never propagate errors upward (spec §7
// "Propagation policy").
type ErrorKind string

const (
	ErrValidation                 ErrorKind = "validation"
	ErrNoEligibleDrone            ErrorKind = "no_eligible_drone"
	ErrDomainDeniedCooldown       ErrorKind = "domain_denied_cooldown"
	ErrDomainDeniedGlobal         ErrorKind = "domain_denied_global_concurrency"
	ErrDomainDeniedPerDrone       ErrorKind = "domain_denied_per_drone_concurrency"
	ErrDomainDeniedQPS            ErrorKind = "domain_denied_per_drone_qps"
	ErrPersonaMissing             ErrorKind = "persona_missing"
	ErrAckTimeout                 ErrorKind = "ack_timeout"
	ErrDroneDisconnected          ErrorKind = "drone_disconnected"
	ErrInvalidInInterventionMode  ErrorKind = "invalid_in_intervention_mode"
	ErrInterventionActive         ErrorKind = "intervention_active"
	ErrTransport                  ErrorKind = "transport"
)
