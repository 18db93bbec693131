// Package sink defines the four outbound interfaces spec.md §6 names
// (artifact sink, session registry, dead-letter sink, intervention
// notifier) plus reference implementations: a file-archiving
// DeadLetterSink grounded on the teacher's
// DeadLetterProcessor.archiveDeadLetter, an artifact dispatcher that
// routes by artifact.type, and a DesktopInterventionNotifier adapted
// from the teacher's internal/notify package.
package sink

import (
	"context"

	"github.com/dronefleet/orchestrator/internal/model"
)

// ArtifactSink persists artifacts a drone reports with a ReportResult. The
// scheduler never calls these methods directly — see Dispatch, which routes
// by artifact["type"] per spec §6.
type ArtifactSink interface {
	StoreFacts(ctx context.Context, commandID string, facts []any) error
	StoreSnippets(ctx context.Context, commandID string, snippets []any) error
	StoreArtifact(ctx context.Context, commandID string, artifactType string, data any, metadata any) error
}

// SessionRegistry records the browser-session lease state a drone reports
// alongside a command result.
type SessionRegistry interface {
	UpdateSessionState(ctx context.Context, leaseID string, state model.Value) error
}

// DeadLetterSink receives commands the scheduler gave up retrying.
type DeadLetterSink interface {
	Publish(ctx context.Context, entry model.DeadLetterCommand) error
}

// InterventionNotifier alerts a human operator that a drone needs help.
type InterventionNotifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Dispatch routes a single artifact map (as reported in
// CommandResultPayload.Artifacts) to the matching ArtifactSink method,
// keyed by artifact["type"] per spec §6: "facts" -> StoreFacts, "snippets"
// -> StoreSnippets, anything else -> StoreArtifact.
func Dispatch(ctx context.Context, sink ArtifactSink, commandID string, artifact map[string]any) error {
	kind, _ := artifact["type"].(string)
	switch kind {
	case "facts":
		data, _ := artifact["data"].([]any)
		return sink.StoreFacts(ctx, commandID, data)
	case "snippets":
		data, _ := artifact["data"].([]any)
		return sink.StoreSnippets(ctx, commandID, data)
	default:
		return sink.StoreArtifact(ctx, commandID, kind, artifact["data"], artifact["metadata"])
	}
}
