// Package limiter gates requests by identity and route against time-windowed quotas.
package limiter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/athenax/reviewd/internal/errs"
)

// Quota is a single (max requests, window) pair. A route may carry several
// quotas at once; admission requires headroom in every one of them.
type Quota struct {
	Max    int64
	Window time.Duration
}

// PerMinute returns an n-per-minute quota.
func PerMinute(n int64) Quota { return Quota{Max: n, Window: time.Minute} }

// PerSecond returns an n-per-second quota.
func PerSecond(n int64) Quota { return Quota{Max: n, Window: time.Second} }

// PerHour returns an n-per-hour quota.
func PerHour(n int64) Quota { return Quota{Max: n, Window: time.Hour} }

// Decision is the outcome of an admission check. RetryAfter is meaningful
// only when Allowed is false.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// CounterStore is an atomic increment-with-expiry key-value boundary.
// The first increment of a key arms that key's expiry at window; the returned
// ttl is the remaining life of the window. Counts within a window only grow.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// FailMode decides what happens when the counter store is unreachable.
type FailMode int

const (
	// FailOpen admits the request and logs the store failure.
	FailOpen FailMode = iota
	// FailClosed refuses the request with errs.ErrUnavailable.
	FailClosed
)

// Limiter admits requests against per-route quota sets. The failure mode is
// process-wide; it is never mixed per route.
type Limiter struct {
	store    CounterStore
	defaults []Quota
	routes   map[string][]Quota
	mode     FailMode
	log      *zap.Logger
}

// New constructs a Limiter with default quotas applied to unregistered routes.
func New(store CounterStore, defaults []Quota, mode FailMode, log *zap.Logger) *Limiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{
		store:    store,
		defaults: defaults,
		routes:   make(map[string][]Quota),
		mode:     mode,
		log:      log,
	}
}

// SetRoute overrides the quota set for a named route.
func (l *Limiter) SetRoute(route string, quotas ...Quota) {
	l.routes[route] = quotas
}

// Admit atomically increments every quota window for (identityKey, route) and
// compares. Each physical call increments exactly once per window; a denied
// request is never re-counted by this method. Store failures follow the
// configured FailMode.
func (l *Limiter) Admit(ctx context.Context, identityKey, route string) (Decision, error) {
	quotas, ok := l.routes[route]
	if !ok {
		quotas = l.defaults
	}

	allowed := true
	var retry time.Duration
	for _, q := range quotas {
		key := counterKey(identityKey, route, q.Window)
		count, ttl, err := l.store.Incr(ctx, key, q.Window)
		if err != nil {
			if l.mode == FailClosed {
				return Decision{}, fmt.Errorf("%w: rate counter store: %v", errs.ErrUnavailable, err)
			}
			l.log.Warn("rate counter store failure, admitting",
				zap.String("route", route),
				zap.Error(err),
			)
			continue
		}
		if count > q.Max {
			allowed = false
			if ttl > retry {
				retry = ttl
			}
		}
	}
	return Decision{Allowed: allowed, RetryAfter: retry}, nil
}

// counterKey names one window counter. The window length is part of the key so
// stacked quotas on the same route stay independent; bucket rotation comes
// from the store-side expiry, not from the key.
func counterKey(identityKey, route string, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", identityKey, route, int64(window.Seconds()))
}
