package sink

import (
	"context"
	"sync"

	"github.com/dronefleet/orchestrator/internal/model"
)

// storedArtifact is one entry accumulated by MemoryArtifactSink, used by
// tests and by hosts that have no durable artifact backend configured.
type storedArtifact struct {
	CommandID string
	Kind      string
	Data      any
	Metadata  any
}

// MemoryArtifactSink is an in-memory ArtifactSink reference implementation.
// Real deployments plug in a sink backed by whatever store holds scraped
// facts/snippets; this one exists so the scheduler has something concrete
// to depend on in tests and in a single-process deployment.
type MemoryArtifactSink struct {
	mu        sync.Mutex
	facts     []storedArtifact
	snippets  []storedArtifact
	artifacts []storedArtifact
}

func NewMemoryArtifactSink() *MemoryArtifactSink {
	return &MemoryArtifactSink{}
}

func (s *MemoryArtifactSink) StoreFacts(ctx context.Context, commandID string, facts []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, storedArtifact{CommandID: commandID, Kind: "facts", Data: facts})
	return nil
}

func (s *MemoryArtifactSink) StoreSnippets(ctx context.Context, commandID string, snippets []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snippets = append(s.snippets, storedArtifact{CommandID: commandID, Kind: "snippets", Data: snippets})
	return nil
}

func (s *MemoryArtifactSink) StoreArtifact(ctx context.Context, commandID string, artifactType string, data any, metadata any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, storedArtifact{CommandID: commandID, Kind: artifactType, Data: data, Metadata: metadata})
	return nil
}

func (s *MemoryArtifactSink) Facts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.facts)
}

func (s *MemoryArtifactSink) Snippets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snippets)
}

func (s *MemoryArtifactSink) Artifacts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.artifacts)
}

// MemorySessionRegistry is an in-memory SessionRegistry reference
// implementation, tracking the most recently reported state per lease id.
type MemorySessionRegistry struct {
	mu     sync.Mutex
	states map[string]model.Value
}

func NewMemorySessionRegistry() *MemorySessionRegistry {
	return &MemorySessionRegistry{states: make(map[string]model.Value)}
}

func (r *MemorySessionRegistry) UpdateSessionState(ctx context.Context, leaseID string, state model.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[leaseID] = state
	return nil
}

func (r *MemorySessionRegistry) Get(leaseID string) (model.Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.states[leaseID]
	return v, ok
}
