package scheduler

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// pacingToken is the one-permit counting semaphore per drone spec §5
// describes ("Pacing token: one-permit counting semaphore per drone;
// acquire non-blocking, release exactly once"). It satisfies
// lifecycle.Releasable so the tracker can release it alongside a domain
// lease without depending on this package.
type pacingToken struct {
	sem  *semaphore.Weighted
	once sync.Once
}

func newPacingSemaphore(maxInFlight int) *semaphore.Weighted {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return semaphore.NewWeighted(int64(maxInFlight))
}

// tryAcquirePacingToken attempts a non-blocking acquire, returning nil if no
// permit is currently available.
func tryAcquirePacingToken(sem *semaphore.Weighted) *pacingToken {
	if !sem.TryAcquire(1) {
		return nil
	}
	return &pacingToken{sem: sem}
}

// Release returns the permit, exactly once.
func (p *pacingToken) Release() {
	p.once.Do(func() {
		p.sem.Release(1)
	})
}
