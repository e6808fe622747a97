package engine

import "sync"

// JobGuard tracks remote analysis jobs currently in flight, keyed by target
// resource. It guarantees at-most-one concurrent job per key; it does not
// queue or order later attempts. Callers observe "already running" and
// retry on a later pass.
type JobGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewJobGuard() *JobGuard {
	return &JobGuard{inFlight: make(map[string]struct{})}
}

// TryStart atomically claims key. It returns false if a job for key is
// already running.
func (g *JobGuard) TryStart(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.inFlight[key]; ok {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

// Finish releases key unconditionally. Callers must defer this as soon as
// TryStart succeeds so a failed job still releases the key.
func (g *JobGuard) Finish(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, key)
}

// Len reports the number of keys currently claimed.
func (g *JobGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}
