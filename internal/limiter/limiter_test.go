package limiter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/athenax/reviewd/internal/errs"
)

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, fmt.Errorf("connection refused")
}

// clockStore wraps a MemoryStore with a settable clock.
func clockStore(start time.Time) (*MemoryStore, *time.Time) {
	now := start
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	return s, &now
}

func TestAdmit_RouteLimitAndDefaults(t *testing.T) {
	t.Parallel()
	s, _ := clockStore(time.Unix(1000, 0))
	l := New(s, []Quota{PerMinute(2)}, FailOpen, nil)
	l.SetRoute("reports:read", PerMinute(3))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Admit(ctx, "user:a", "reports:read")
		if err != nil || !d.Allowed {
			t.Fatalf("request %d: got %+v %v", i+1, d, err)
		}
	}
	if d, _ := l.Admit(ctx, "user:a", "reports:read"); d.Allowed {
		t.Fatalf("4th request above route quota admitted")
	}

	// Unregistered routes fall back to the defaults.
	for i := 0; i < 2; i++ {
		if d, _ := l.Admit(ctx, "user:a", "other"); !d.Allowed {
			t.Fatalf("default quota request %d denied", i+1)
		}
	}
	if d, _ := l.Admit(ctx, "user:a", "other"); d.Allowed {
		t.Fatalf("request above default quota admitted")
	}
}

func TestAdmit_IdentitiesIsolated(t *testing.T) {
	t.Parallel()
	s, _ := clockStore(time.Unix(1000, 0))
	l := New(s, []Quota{PerMinute(1)}, FailOpen, nil)
	ctx := context.Background()

	if d, _ := l.Admit(ctx, "user:a", "r"); !d.Allowed {
		t.Fatal("first request for a denied")
	}
	if d, _ := l.Admit(ctx, "user:a", "r"); d.Allowed {
		t.Fatal("second request for a admitted")
	}
	if d, _ := l.Admit(ctx, "user:b", "r"); !d.Allowed {
		t.Fatal("b throttled by a's counter")
	}
}

func TestAdmit_StackedQuotasAllMustHold(t *testing.T) {
	t.Parallel()
	s, _ := clockStore(time.Unix(1000, 0))
	l := New(s, nil, FailOpen, nil)
	l.SetRoute("reports:mutate", PerMinute(5), PerHour(10))
	ctx := context.Background()

	// Five pass under both windows.
	for i := 0; i < 5; i++ {
		if d, _ := l.Admit(ctx, "user:a", "reports:mutate"); !d.Allowed {
			t.Fatalf("request %d denied", i+1)
		}
	}
	// The sixth breaches the minute quota even though the hour quota has room.
	d, err := l.Admit(ctx, "user:a", "reports:mutate")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if d.Allowed {
		t.Fatal("6th request admitted despite exhausted minute quota")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("RetryAfter = %v, want within the minute window", d.RetryAfter)
	}
}

func TestAdmit_WindowExpiryResetsCounter(t *testing.T) {
	t.Parallel()
	s, now := clockStore(time.Unix(1000, 0))
	l := New(s, nil, FailOpen, nil)
	l.SetRoute("reports:mutate", PerMinute(5))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if d, _ := l.Admit(ctx, "user:a", "reports:mutate"); !d.Allowed {
			t.Fatalf("request %d denied", i+1)
		}
	}
	d, _ := l.Admit(ctx, "user:a", "reports:mutate")
	if d.Allowed {
		t.Fatal("6th request admitted")
	}
	d, _ = l.Admit(ctx, "user:a", "reports:mutate")
	if d.Allowed {
		t.Fatal("7th request admitted")
	}

	// The denied attempts were counted, but the window still rotates on expiry.
	*now = now.Add(61 * time.Second)
	if d, _ := l.Admit(ctx, "user:a", "reports:mutate"); !d.Allowed {
		t.Fatal("request after window expiry denied")
	}
}

func TestAdmit_FailOpen(t *testing.T) {
	t.Parallel()
	l := New(failingStore{}, []Quota{PerSecond(1)}, FailOpen, nil)

	d, err := l.Admit(context.Background(), "user:a", "r")
	if err != nil {
		t.Fatalf("fail-open returned error: %v", err)
	}
	if !d.Allowed {
		t.Fatal("fail-open denied the request")
	}
}

func TestAdmit_FailClosed(t *testing.T) {
	t.Parallel()
	l := New(failingStore{}, []Quota{PerSecond(1)}, FailClosed, nil)

	_, err := l.Admit(context.Background(), "user:a", "r")
	if !errors.Is(err, errs.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	t.Parallel()
	s, now := clockStore(time.Unix(1000, 0))
	ctx := context.Background()

	if _, _, err := s.Incr(ctx, "k1", time.Second); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if _, _, err := s.Incr(ctx, "k2", time.Hour); err != nil {
		t.Fatalf("Incr: %v", err)
	}

	*now = now.Add(2 * time.Second)
	s.Sweep()

	s.mu.Lock()
	_, k1 := s.counters["k1"]
	_, k2 := s.counters["k2"]
	s.mu.Unlock()
	if k1 {
		t.Fatal("expired window survived sweep")
	}
	if !k2 {
		t.Fatal("live window dropped by sweep")
	}
}
