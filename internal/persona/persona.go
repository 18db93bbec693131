// Package persona defines the persona store the scheduler consults during
// dispatch (spec §4.6 step 4, "Load persona for task.personaId") and a
// reference in-memory implementation that deduplicates concurrent lookups
// of the same persona id, grounded on the teacher's quality.Engine's
// singleflight-guarded cache lookup.
package persona

import (
	"context"
	"fmt"
	"sync"

	"github.com/dronefleet/orchestrator/internal/model"
	"golang.org/x/sync/singleflight"
)

// Persona is the loaded persona payload the scheduler attaches to a
// CommandPayload (spec §6 CommandPayload.persona).
type Persona struct {
	PersonaID string
	Traits    model.Value
}

// ErrNotFound is returned by Store.Load when personaId has no backing
// persona, triggering the scheduler's persona-missing backoff (§4.6.3).
var ErrNotFound = fmt.Errorf("persona: not found")

// Store resolves a persona id to its traits.
type Store interface {
	Load(ctx context.Context, personaID string) (Persona, error)
}

// Source is the underlying (possibly slow) lookup a MemoryStore wraps —
// typically a database or config-file read. Implementations should return
// persona.ErrNotFound when personaId is unknown.
type Source func(ctx context.Context, personaID string) (Persona, error)

// MemoryStore caches personas in memory and uses singleflight to collapse
// concurrent Load calls for the same id into a single Source invocation, the
// way the teacher's quality.Engine collapses concurrent gate evaluations.
type MemoryStore struct {
	source Source
	group  singleflight.Group
	cache  sync.Map
}

func NewMemoryStore(source Source) *MemoryStore {
	return &MemoryStore{source: source}
}

func (s *MemoryStore) Load(ctx context.Context, personaID string) (Persona, error) {
	if p, ok := s.cache.Load(personaID); ok {
		return p.(Persona), nil
	}

	v, err, _ := s.group.Do(personaID, func() (any, error) {
		p, err := s.source(ctx, personaID)
		if err != nil {
			return Persona{}, err
		}
		s.cache.Store(personaID, p)
		return p, nil
	})
	if err != nil {
		return Persona{}, err
	}
	return v.(Persona), nil
}

// Invalidate drops a cached persona, forcing the next Load to consult the
// source again.
func (s *MemoryStore) Invalidate(personaID string) {
	s.cache.Delete(personaID)
}
