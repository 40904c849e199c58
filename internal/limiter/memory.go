package limiter

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process CounterStore with the same fixed-window
// semantics as the Redis store. Used in tests and single-node deployments.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	now      func() time.Time
}

type windowCounter struct {
	count   int64
	expires time.Time
}

// NewMemoryStore constructs an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*windowCounter),
		now:      time.Now,
	}
}

// Incr increments the counter for key, starting a fresh window when none is
// live. Expired windows are replaced, never decremented.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || !c.expires.After(now) {
		c = &windowCounter{expires: now.Add(window)}
		s.counters[key] = c
	}
	c.count++
	return c.count, c.expires.Sub(now), nil
}

// Sweep drops expired windows. Harmless to skip; keys are replaced lazily on
// the next increment anyway.
func (s *MemoryStore) Sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.counters {
		if !c.expires.After(now) {
			delete(s.counters, k)
		}
	}
}

// StartJanitor sweeps expired windows periodically until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}
