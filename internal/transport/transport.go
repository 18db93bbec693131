// Package transport implements spec.md §6's drone transport: group-based
// pub/sub ("drone_{droneId}", "operators") with at-least-once delivery
// assumed. Message is the wire envelope; Bus (this file's sibling bus.go) is
// an in-process implementation generalized from the teacher's
// internal/events.Bus (EventType→group, Event→Message, non-blocking
// per-subscriber fan-out); ws.go is a gorilla/websocket-backed
// implementation grounded on cklxx-elephant.ai's chromebridge hello/welcome
// handshake and read-loop idiom.
package transport

import "context"

// Kind names one of the message shapes in spec §6 (ExecuteCommand,
// AcknowledgeCommand, ReportResult, ...).
type Kind string

const (
	KindExecuteCommand     Kind = "ExecuteCommand"
	KindExecuteQuery       Kind = "ExecuteQuery"
	KindRegisterDrone      Kind = "RegisterDrone"
	KindAcknowledgeCommand Kind = "AcknowledgeCommand"
	KindReportResult       Kind = "ReportResult"
	KindReportError        Kind = "ReportError"
	KindReportStatus       Kind = "ReportStatus"
	KindRequireIntervention Kind = "RequireIntervention"
	KindInterventionRequested Kind = "InterventionRequested"
	KindQueryResponse       Kind = "QueryResponse"
)

// OperatorsGroup is the fixed broadcast group operator UIs subscribe to.
const OperatorsGroup = "operators"

// DronesGroup is the fixed group newly-connecting drones publish their
// RegisterDrone handshake to, before the scheduler knows their id well
// enough to subscribe to their own DroneGroup.
const DronesGroup = "drones"

// DroneGroup returns the publish/subscribe group for a single drone.
func DroneGroup(droneID string) string { return "drone_" + droneID }

// Message is one envelope moving through a group.
type Message struct {
	Kind    Kind
	Payload any
}

// Handler receives messages delivered to a subscription.
type Handler func(Message)

// Transport is the group pub/sub abstraction the scheduler, intervention
// manager, and drone-facing server depend on — never a concrete Bus or Hub
// type, so tests can substitute an in-process Bus for a real network
// transport.
type Transport interface {
	// Publish delivers msg to every current subscriber of group. Never
	// blocks on a slow subscriber (spec §5 "no operation holds the
	// scheduler reader while waiting on IO").
	Publish(ctx context.Context, group string, msg Message) error
	// Subscribe registers fn for every message published to group.
	// Returns an unsubscribe function.
	Subscribe(group string, fn Handler) (unsubscribe func())
}
