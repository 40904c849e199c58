package authn

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/athenax/reviewd/internal/errs"
)

type fakeFetcher struct {
	mu     sync.Mutex
	sets   []map[string]crypto.PublicKey
	err    error
	calls  int32
	blockC chan struct{} // when set, Fetch waits until closed
}

func (f *fakeFetcher) Fetch(context.Context) (map[string]crypto.PublicKey, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.blockC != nil {
		<-f.blockC
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.sets[0]
	if len(f.sets) > 1 {
		f.sets = f.sets[1:]
	}
	return set, nil
}

func (f *fakeFetcher) fetchCount() int32 { return atomic.LoadInt32(&f.calls) }

func testKey(t *testing.T) crypto.PublicKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return &k.PublicKey
}

func TestKeyCache_HitSkipsFetch(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{sets: []map[string]crypto.PublicKey{{"k1": testKey(t)}}}
	c := NewKeyCache(f, 5)

	if _, err := c.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("Key: %v", err)
	}
	if _, err := c.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("Key (cached): %v", err)
	}
	if got := f.fetchCount(); got != 1 {
		t.Fatalf("want 1 fetch, got %d", got)
	}
}

func TestKeyCache_ConcurrentMissesCoalesce(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	f := &fakeFetcher{
		sets:   []map[string]crypto.PublicKey{{"k1": testKey(t)}},
		blockC: block,
	}
	c := NewKeyCache(f, 5)

	const n = 32
	var wg sync.WaitGroup
	errsOut := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errsOut[i] = c.Key(context.Background(), "k1")
		}(i)
	}
	// All callers are now either parked on the single flight or about to be.
	close(block)
	wg.Wait()

	for i, err := range errsOut {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := f.fetchCount(); got != 1 {
		t.Fatalf("want exactly 1 coalesced fetch, got %d", got)
	}
}

func TestKeyCache_BoundedEviction(t *testing.T) {
	t.Parallel()
	const maxKeys = 3
	var sets []map[string]crypto.PublicKey
	for i := 0; i < 6; i++ {
		sets = append(sets, map[string]crypto.PublicKey{fmt.Sprintf("k%d", i): testKey(t)})
	}
	f := &fakeFetcher{sets: sets}
	c := NewKeyCache(f, maxKeys)

	for i := 0; i < 6; i++ {
		if _, err := c.Key(context.Background(), fmt.Sprintf("k%d", i)); err != nil {
			t.Fatalf("Key k%d: %v", i, err)
		}
		if got := c.Len(); got > maxKeys {
			t.Fatalf("cache grew to %d, cap %d", got, maxKeys)
		}
	}
	// The most recently requested key must have survived eviction.
	if _, err := c.Key(context.Background(), "k5"); err != nil {
		t.Fatalf("freshest key evicted: %v", err)
	}
	if got := f.fetchCount(); got != 6 {
		t.Fatalf("want 6 fetches, got %d", got)
	}
}

func TestKeyCache_UnknownVsUnavailable(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{sets: []map[string]crypto.PublicKey{{"other": testKey(t)}}}
	c := NewKeyCache(f, 5)

	_, err := c.Key(context.Background(), "retired")
	if !errors.Is(err, errs.ErrUnknownKey) {
		t.Fatalf("want ErrUnknownKey, got %v", err)
	}

	down := &fakeFetcher{err: fmt.Errorf("%w: connection refused", errs.ErrKeySetUnavailable)}
	c2 := NewKeyCache(down, 5)
	_, err = c2.Key(context.Background(), "k1")
	if !errors.Is(err, errs.ErrKeySetUnavailable) {
		t.Fatalf("want ErrKeySetUnavailable, got %v", err)
	}
	if errors.Is(err, errs.ErrUnknownKey) {
		t.Fatalf("unavailable must not look like unknown key")
	}
}
