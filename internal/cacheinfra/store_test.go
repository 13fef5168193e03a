package cacheinfra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-query-cache/cache"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := NewStore(DefaultConfig(), opts...)
	require.NoError(t, err)
	return s
}

// countingFetcher returns the values in order, repeating the last one.
type countingFetcher struct {
	calls  atomic.Int32
	values []any
	errs   []error
	gate   chan struct{}
}

func (f *countingFetcher) fetch(ctx context.Context) (any, error) {
	n := int(f.calls.Add(1)) - 1
	if f.gate != nil {
		<-f.gate
	}
	if n < len(f.errs) && f.errs[n] != nil {
		return nil, f.errs[n]
	}
	if len(f.values) == 0 {
		return nil, nil
	}
	if n >= len(f.values) {
		n = len(f.values) - 1
	}
	return f.values[n], nil
}

type recorder struct {
	mu      sync.Mutex
	entries []cache.Entry
}

func (r *recorder) listen(e cache.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) all() []cache.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cache.Entry(nil), r.entries...)
}

func noRetry(p cache.Policy) cache.Policy {
	p.ErrorRetryCount = 0
	return p
}

func TestFetchSharesOneCall(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("book", "alice", int64(42))
	f := &countingFetcher{values: []any{"dune"}, gate: make(chan struct{})}
	s.Register(key, f.fetch, cache.DefaultPolicy())

	const callers = 10
	var wg sync.WaitGroup
	results := make([]any, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.FetchFor(context.Background(), key, nil)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, v := range results {
		assert.Equal(t, "dune", v)
	}
}

func TestFetchWithinDedupWindowServesCache(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("genres", "alice", nil)
	f := &countingFetcher{values: []any{"v1", "v2"}}
	s.Register(key, f.fetch, cache.DefaultPolicy())

	v, err := s.FetchFor(context.Background(), key, nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	v, err = s.FetchFor(context.Background(), key, nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.Equal(t, int32(1), f.calls.Load())

	assert.Equal(t, 1, s.Invalidate(context.Background(), cache.Exact(key)))
	assert.True(t, s.Get(key).Stale)

	v, err = s.FetchFor(context.Background(), key, nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
	assert.Equal(t, int32(2), f.calls.Load())
	assert.False(t, s.Get(key).Stale)
}

func TestFetchWithoutWindowRefetches(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("books", "alice", nil)
	f := &countingFetcher{values: []any{"v1", "v2"}}
	s.Register(key, f.fetch, cache.VolatilePolicy())

	_, err := s.FetchFor(context.Background(), key, nil)
	require.NoError(t, err)
	v, err := s.FetchFor(context.Background(), key, nil)
	require.NoError(t, err)

	assert.Equal(t, "v2", v)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestFetchWithoutFetcher(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FetchFor(context.Background(), cache.NewKey("book", "alice", 1), nil)
	assert.ErrorIs(t, err, cache.ErrNoFetcher)
}

func TestFailedRevalidationKeepsValue(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("book", "alice", int64(42))
	boom := errors.New("boom")
	f := &countingFetcher{values: []any{"dune"}, errs: []error{nil, boom}}
	policy := noRetry(cache.DefaultPolicy())
	policy.DedupingInterval = 0
	s.Register(key, f.fetch, policy)

	_, err := s.FetchFor(context.Background(), key, nil)
	require.NoError(t, err)

	_, err = s.FetchFor(context.Background(), key, nil)
	require.ErrorIs(t, err, boom)

	e := s.Get(key)
	assert.True(t, e.HasValue)
	assert.Equal(t, "dune", e.Value)
	assert.ErrorIs(t, e.Err, boom)
	assert.False(t, e.IsValidating)
	assert.False(t, e.Stale)
	assert.False(t, e.LastFetchedAt.IsZero())
}

func TestFetchCallerCancelDoesNotAbortSharedFetch(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("book", "alice", int64(1))
	f := &countingFetcher{values: []any{"dune"}, gate: make(chan struct{})}
	s.Register(key, f.fetch, cache.DefaultPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.FetchFor(ctx, key, nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, waitFor, tick)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(f.gate)
	require.Eventually(t, func() bool { return s.Get(key).HasValue }, waitFor, tick)
	assert.Equal(t, "dune", s.Get(key).Value)
}

func TestMutateNotifiesAndReturnsPrevious(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("book", "alice", int64(42))
	rec := &recorder{}
	unsubscribe := s.Subscribe(key, rec.listen)
	defer unsubscribe()

	prev, rev1 := s.Mutate(context.Background(), key, cache.Set("a"), cache.MutateOptions{})
	assert.False(t, prev.HasValue)

	prev, rev2 := s.Mutate(context.Background(), key, cache.Set("b"), cache.MutateOptions{Optimistic: true})
	assert.True(t, prev.HasValue)
	assert.Equal(t, "a", prev.Value)
	assert.Greater(t, rev2, rev1)

	e := s.Get(key)
	assert.Equal(t, "b", e.Value)
	assert.True(t, e.Optimistic)
	assert.Equal(t, rev2, e.Revision)

	seen := rec.all()
	require.Len(t, seen, 2)
	assert.Equal(t, "a", seen[0].Value)
	assert.Equal(t, "b", seen[1].Value)
}

func TestMutateClearLeavesNoValue(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("book", "alice", int64(42))

	s.Mutate(context.Background(), key, cache.Set("a"), cache.MutateOptions{})
	s.Mutate(context.Background(), key, cache.Clear(), cache.MutateOptions{Optimistic: true})

	e := s.Get(key)
	assert.False(t, e.HasValue)
	assert.Nil(t, e.Value)
	assert.False(t, e.Optimistic)
}

func TestMutateWithRevalidate(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("book", "alice", int64(42))
	f := &countingFetcher{values: []any{"server"}}
	s.Register(key, f.fetch, cache.DefaultPolicy())

	s.Mutate(context.Background(), key, cache.Set("local"), cache.MutateOptions{Revalidate: true})

	require.Eventually(t, func() bool { return s.Get(key).Value == "server" }, waitFor, tick)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestRollbackRestoresPrevious(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("book", "alice", int64(42))
	s.Mutate(context.Background(), key, cache.Set("server"), cache.MutateOptions{})

	prev, rev := s.Mutate(context.Background(), key, cache.Set("draft"), cache.MutateOptions{Optimistic: true})
	require.True(t, s.Rollback(context.Background(), key, prev, rev))

	e := s.Get(key)
	assert.Equal(t, "server", e.Value)
	assert.False(t, e.Optimistic)
}

func TestRollbackSkipsSupersededWrite(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("book", "alice", int64(42))
	s.Mutate(context.Background(), key, cache.Set("server"), cache.MutateOptions{})

	prevA, revA := s.Mutate(context.Background(), key, cache.Set("a"), cache.MutateOptions{Optimistic: true})
	s.Mutate(context.Background(), key, cache.Set("b"), cache.MutateOptions{Optimistic: true})

	assert.False(t, s.Rollback(context.Background(), key, prevA, revA))
	assert.Equal(t, "b", s.Get(key).Value)
}

func TestRollbackOfUnknownKey(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.Rollback(context.Background(), cache.NewKey("book", "alice", 1), cache.Entry{}, 1))
}

func TestReconcileConfirmsOwnWrite(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("book", "alice", int64(42))
	_, rev := s.Mutate(context.Background(), key, cache.Set("draft"), cache.MutateOptions{Optimistic: true})

	require.True(t, s.Reconcile(context.Background(), key, rev, cache.Set("server")))

	e := s.Get(key)
	assert.Equal(t, "server", e.Value)
	assert.False(t, e.Optimistic)
	assert.Greater(t, e.Revision, rev)
}

func TestReconcileSkipsSupersededWrite(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("book", "alice", int64(42))
	_, rev := s.Mutate(context.Background(), key, cache.Set("draft"), cache.MutateOptions{Optimistic: true})
	s.Mutate(context.Background(), key, cache.Set("fetched"), cache.MutateOptions{})

	assert.False(t, s.Reconcile(context.Background(), key, rev, cache.Set("server")))
	assert.Equal(t, "fetched", s.Get(key).Value)
}

func TestReconcileNeverCreatesEntries(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("book", "alice", int64(42))
	_, rev := s.Mutate(context.Background(), key, cache.Set("draft"), cache.MutateOptions{Optimistic: true})
	s.Purge(cache.ForIdentity("alice"))

	assert.False(t, s.Reconcile(context.Background(), key, rev, cache.Set("server")))
	assert.False(t, s.Reconcile(context.Background(), key, 0, cache.Set("server")))
	assert.Empty(t, s.Keys(cache.ForIdentity("alice")))
}

func TestReconcileWithoutRevisionRewritesExistingKey(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("book", "alice", int64(42))
	s.Mutate(context.Background(), key, cache.Set("cached"), cache.MutateOptions{})

	require.True(t, s.Reconcile(context.Background(), key, 0, cache.Set("server")))
	assert.Equal(t, "server", s.Get(key).Value)
}

func TestPurgeDropsOneIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice1 := cache.NewKey("book", "alice", int64(1))
	alice2 := cache.NewKey("books", "alice", nil)
	bob := cache.NewKey("book", "bob", int64(1))

	for _, k := range []cache.Key{alice1, alice2, bob} {
		s.Mutate(ctx, k, cache.Set(k.Identity), cache.MutateOptions{})
	}

	rec := &recorder{}
	s.Subscribe(alice1, rec.listen)

	assert.Equal(t, 2, s.Purge(cache.ForIdentity("alice")))

	keys := s.Keys(nil)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Equal(bob))
	assert.False(t, s.Get(alice1).HasValue)
	assert.Equal(t, "bob", s.Get(bob).Value)

	seen := rec.all()
	require.NotEmpty(t, seen)
	assert.False(t, seen[len(seen)-1].HasValue)
}

func TestInvalidateRefetchesSubscribedOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	watched := cache.NewKey("book", "alice", int64(1))
	idle := cache.NewKey("book", "alice", int64(2))

	fw := &countingFetcher{values: []any{"fresh"}}
	fi := &countingFetcher{values: []any{"fresh"}}
	s.Register(watched, fw.fetch, cache.DefaultPolicy())
	s.Register(idle, fi.fetch, cache.DefaultPolicy())
	s.Mutate(ctx, watched, cache.Set("old"), cache.MutateOptions{})
	s.Mutate(ctx, idle, cache.Set("old"), cache.MutateOptions{})

	unsubscribe := s.Subscribe(watched, func(cache.Entry) {})
	defer unsubscribe()

	assert.Equal(t, 2, s.Invalidate(ctx, cache.ForResource("alice", "book")))

	require.Eventually(t, func() bool { return s.Get(watched).Value == "fresh" }, waitFor, tick)
	assert.Equal(t, int32(0), fi.calls.Load())
	assert.True(t, s.Get(idle).Stale)
	assert.Equal(t, "old", s.Get(idle).Value)
}

func TestRevalidateFollowsPolicy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reference := cache.NewKey("genres", "alice", nil)
	volatile := cache.NewKey("books", "alice", nil)
	unwatched := cache.NewKey("authors", "alice", nil)

	fr := &countingFetcher{values: []any{"g"}}
	fv := &countingFetcher{values: []any{"b"}}
	fu := &countingFetcher{values: []any{"a"}}
	s.Register(reference, fr.fetch, cache.DefaultPolicy())
	s.Register(volatile, fv.fetch, cache.VolatilePolicy())
	s.Register(unwatched, fu.fetch, cache.VolatilePolicy())
	defer s.Subscribe(reference, func(cache.Entry) {})()
	defer s.Subscribe(volatile, func(cache.Entry) {})()

	assert.Equal(t, 1, s.Revalidate(ctx, cache.TriggerFocus, nil))
	require.Eventually(t, func() bool { return fv.calls.Load() == 1 }, waitFor, tick)

	assert.Equal(t, 2, s.Revalidate(ctx, cache.TriggerReconnect, nil))
	require.Eventually(t, func() bool { return fr.calls.Load() == 1 }, waitFor, tick)
	assert.Equal(t, int32(0), fu.calls.Load())
}

func TestRevalidateHonorsPredicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := cache.NewKey("books", "alice", nil)
	bob := cache.NewKey("books", "bob", nil)

	fa := &countingFetcher{values: []any{"a"}}
	fb := &countingFetcher{values: []any{"b"}}
	s.Register(alice, fa.fetch, cache.VolatilePolicy())
	s.Register(bob, fb.fetch, cache.VolatilePolicy())
	defer s.Subscribe(alice, func(cache.Entry) {})()
	defer s.Subscribe(bob, func(cache.Entry) {})()

	assert.Equal(t, 1, s.Revalidate(ctx, cache.TriggerFocus, cache.ForIdentity("alice")))
	require.Eventually(t, func() bool { return fa.calls.Load() == 1 }, waitFor, tick)
	assert.Equal(t, int32(0), fb.calls.Load())
}

func TestRetryAfterRetryableFailure(t *testing.T) {
	s := newTestStore(t)
	key := cache.NewKey("book", "alice", int64(1))
	f := &countingFetcher{values: []any{nil, "dune"}, errs: []error{errors.New("unreachable")}}
	policy := cache.DefaultPolicy()
	policy.ErrorRetryInterval = 10 * time.Millisecond
	s.Register(key, f.fetch, policy)
	defer s.Subscribe(key, func(cache.Entry) {})()

	_, err := s.FetchFor(context.Background(), key, nil)
	require.Error(t, err)

	require.Eventually(t, func() bool { return s.Get(key).HasValue }, waitFor, tick)
	assert.Equal(t, "dune", s.Get(key).Value)
	assert.NoError(t, s.Get(key).Err)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestNoRetryWhenClassifierRefuses(t *testing.T) {
	s := newTestStore(t, WithRetryClassifier(func(error) bool { return false }))
	key := cache.NewKey("book", "alice", int64(1))
	f := &countingFetcher{errs: []error{errors.New("not found")}}
	policy := cache.DefaultPolicy()
	policy.ErrorRetryInterval = time.Millisecond
	s.Register(key, f.fetch, policy)
	defer s.Subscribe(key, func(cache.Entry) {})()

	_, err := s.FetchFor(context.Background(), key, nil)
	require.Error(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestMutateMatching(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := cache.NewKey("books", "alice", 1)
	b := cache.NewKey("books", "alice", 2)
	other := cache.NewKey("book", "alice", 1)
	for _, k := range []cache.Key{a, b, other} {
		s.Mutate(ctx, k, cache.Set(0), cache.MutateOptions{})
	}

	n := s.MutateMatching(ctx, cache.ForResource("alice", "books"), func(cur any, ok bool) (any, bool) {
		return cur.(int) + 1, true
	}, cache.MutateOptions{})

	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Get(a).Value)
	assert.Equal(t, 1, s.Get(b).Value)
	assert.Equal(t, 0, s.Get(other).Value)

	f := &countingFetcher{values: []any{9}}
	s.Register(other, f.fetch, cache.DefaultPolicy())
	assert.Equal(t, 1, s.MutateMatching(ctx, cache.Exact(other), nil, cache.MutateOptions{}))
	require.Eventually(t, func() bool { return s.Get(other).Value == 9 }, waitFor, tick)
}

func TestKeysAreSorted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Mutate(ctx, cache.NewKey("b", "alice", nil), cache.Set(1), cache.MutateOptions{})
	s.Mutate(ctx, cache.NewKey("a", "alice", nil), cache.Set(1), cache.MutateOptions{})

	keys := s.Keys(nil)
	require.Len(t, keys, 2)
	assert.Equal(t, cache.Resource("a"), keys[0].Resource)
	assert.Equal(t, 2, s.Len())
}

func TestClockIsUsedForFetchTimes(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, WithClock(func() time.Time { return at }))
	key := cache.NewKey("book", "alice", 1)

	_, err := s.FetchFor(context.Background(), key, func(context.Context) (any, error) { return "x", nil })
	require.NoError(t, err)
	assert.Equal(t, at, s.Get(key).LastFetchedAt)
}
