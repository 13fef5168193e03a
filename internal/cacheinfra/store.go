package cacheinfra

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-query-cache/cache"
)

var _ cache.Store = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger used for fetch, mutation and purge events.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetryClassifier decides which fetch errors are retried automatically.
func WithRetryClassifier(fn func(error) bool) Option {
	return func(s *Store) {
		if fn != nil {
			s.retryable = fn
		}
	}
}

// Store is the in-memory cache.Store implementation.
type Store struct {
	entries *xsync.MapOf[string, *entry]
	flight  singleflight.Group
	windows *windowService

	subSeq atomic.Uint64
	revSeq atomic.Uint64

	logger    *zap.Logger
	now       func() time.Time
	retryable func(error) bool
}

// NewStore validates cfg and builds an empty store.
func NewStore(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		entries:   xsync.NewMapOf[string, *entry](),
		windows:   newWindowService(cfg),
		logger:    zap.NewNop(),
		now:       time.Now,
		retryable: func(error) bool { return true },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	return s.entries.Size()
}

func (s *Store) lookup(key cache.Key) (*entry, bool) {
	return s.entries.Load(key.String())
}

func (s *Store) entry(key cache.Key) *entry {
	id := key.String()
	e, _ := s.entries.LoadOrCompute(id, func() *entry {
		return newEntry(key, id)
	})
	return e
}

// Get implements cache.Store.
func (s *Store) Get(key cache.Key) cache.Entry {
	e, ok := s.lookup(key)
	if !ok {
		return cache.Entry{Key: key}
	}
	return e.snapshot()
}

// Keys implements cache.Store.
func (s *Store) Keys(pred cache.Predicate) []cache.Key {
	var keys []cache.Key
	s.entries.Range(func(_ string, e *entry) bool {
		if pred == nil || pred(e.key) {
			keys = append(keys, e.key)
		}
		return true
	})

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})

	return keys
}

func (s *Store) matching(pred cache.Predicate) []*entry {
	var out []*entry
	s.entries.Range(func(_ string, e *entry) bool {
		if pred == nil || pred(e.key) {
			out = append(out, e)
		}
		return true
	})
	return out
}

// Subscribe implements cache.Store.
func (s *Store) Subscribe(key cache.Key, fn cache.Listener) func() {
	e := s.entry(key)
	id := s.subSeq.Add(1)
	e.addSubscriber(id, fn)

	var once sync.Once
	return func() {
		once.Do(func() { e.removeSubscriber(id) })
	}
}

// Register implements cache.Store.
func (s *Store) Register(key cache.Key, fetcher cache.Fetcher, policy cache.Policy) {
	e := s.entry(key)
	e.mu.Lock()
	e.fetcher = fetcher
	e.policy = policy
	e.mu.Unlock()
}

// Mutate implements cache.Store.
func (s *Store) Mutate(ctx context.Context, key cache.Key, up cache.Updater, opts cache.MutateOptions) (cache.Entry, uint64) {
	e := s.entry(key)

	var revision uint64
	before, _, _ := e.write(func(e *entry) bool {
		next, ok := up(e.value, e.hasValue)
		if !ok {
			next = nil
		}
		e.value, e.hasValue = next, ok
		e.optimistic = opts.Optimistic && ok
		revision = s.revSeq.Add(1)
		e.revision = revision
		return true
	})

	s.logger.Debug("cache entry mutated",
		zap.String("key", key.Redacted()),
		zap.Bool("optimistic", opts.Optimistic),
		zap.Uint64("revision", revision),
	)

	if opts.Revalidate {
		s.markStale(e)
		s.spawnFetch(ctx, e)
	}

	return before, revision
}

// Rollback implements cache.Store.
func (s *Store) Rollback(ctx context.Context, key cache.Key, previous cache.Entry, revision uint64) bool {
	e, ok := s.lookup(key)
	if !ok {
		return false
	}

	restored := false
	e.write(func(e *entry) bool {
		if e.revision != revision {
			return false
		}
		e.value = previous.Value
		e.hasValue = previous.HasValue
		e.optimistic = previous.Optimistic
		e.revision = s.revSeq.Add(1)
		restored = true
		return true
	})

	s.logger.Debug("cache entry rollback",
		zap.String("key", key.Redacted()),
		zap.Bool("restored", restored),
		zap.Uint64("revision", revision),
	)

	return restored
}

// Reconcile implements cache.Store.
func (s *Store) Reconcile(ctx context.Context, key cache.Key, revision uint64, up cache.Updater) bool {
	e, ok := s.lookup(key)
	if !ok {
		return false
	}

	written := false
	e.write(func(e *entry) bool {
		if revision != 0 && e.revision != revision {
			return false
		}
		next, ok := up(e.value, e.hasValue)
		if !ok {
			next = nil
		}
		e.value, e.hasValue = next, ok
		e.optimistic = false
		e.revision = s.revSeq.Add(1)
		written = true
		return true
	})

	s.logger.Debug("cache entry reconciled",
		zap.String("key", key.Redacted()),
		zap.Bool("written", written),
		zap.Uint64("revision", revision),
	)

	return written
}

// Invalidate implements cache.Store.
func (s *Store) Invalidate(ctx context.Context, pred cache.Predicate) int {
	victims := s.matching(pred)
	for _, e := range victims {
		s.markStale(e)
		if e.subscribed() {
			s.spawnFetch(ctx, e)
		}
	}

	if len(victims) > 0 {
		s.logger.Debug("cache entries invalidated", zap.Int("count", len(victims)))
	}

	return len(victims)
}

// Purge implements cache.Store.
func (s *Store) Purge(pred cache.Predicate) int {
	victims := s.matching(pred)
	for _, e := range victims {
		s.entries.Delete(e.id)
		s.windows.Forget(e.id)

		e.write(func(e *entry) bool {
			e.stopRetryLocked()
			e.value = nil
			e.hasValue = false
			e.err = nil
			e.validating = false
			e.stale = false
			e.optimistic = false
			e.fetchedAt = time.Time{}
			e.fetcher = nil
			e.revision = s.revSeq.Add(1)
			return true
		})

		e.mu.Lock()
		e.subs = nil
		e.mu.Unlock()
	}

	if len(victims) > 0 {
		s.logger.Info("cache entries purged", zap.Int("count", len(victims)))
	}

	return len(victims)
}

// FetchFor implements cache.Store.
func (s *Store) FetchFor(ctx context.Context, key cache.Key, fetcher cache.Fetcher) (any, error) {
	e := s.entry(key)
	if fetcher == nil {
		fetcher, _ = e.registration()
		if fetcher == nil {
			return nil, cache.ErrNoFetcher
		}
	}
	return s.fetch(ctx, e, fetcher, s.now())
}

// Revalidate implements cache.Store.
func (s *Store) Revalidate(ctx context.Context, trigger cache.Trigger, pred cache.Predicate) int {
	count := 0
	for _, e := range s.matching(pred) {
		_, policy := e.registration()
		if !policy.Allows(trigger) || !e.subscribed() {
			continue
		}
		if s.spawnFetch(ctx, e) {
			count++
		}
	}

	s.logger.Debug("cache revalidation triggered",
		zap.Stringer("trigger", trigger),
		zap.Int("count", count),
	)

	return count
}

// MutateMatching implements cache.Store.
func (s *Store) MutateMatching(ctx context.Context, pred cache.Predicate, up cache.Updater, opts cache.MutateOptions) int {
	keys := s.Keys(pred)
	for _, key := range keys {
		if up != nil {
			s.Mutate(ctx, key, up, opts)
			continue
		}
		if e, ok := s.lookup(key); ok {
			s.markStale(e)
			s.spawnFetch(ctx, e)
		}
	}
	return len(keys)
}

func (s *Store) markStale(e *entry) {
	s.windows.Forget(e.id)
	e.write(func(e *entry) bool {
		if e.stale {
			return false
		}
		e.stale = true
		return true
	})
}

// spawnFetch refetches e in the background with its registered fetcher.
func (s *Store) spawnFetch(ctx context.Context, e *entry) bool {
	fetcher, _ := e.registration()
	if fetcher == nil {
		return false
	}

	bg := context.WithoutCancel(ctx)
	requested := s.now()
	go func() {
		if _, err := s.fetch(bg, e, fetcher, requested); err != nil {
			s.logger.Debug("background fetch failed", zap.String("key", e.key.Redacted()), zap.Error(err))
		}
	}()

	return true
}

// fetch returns the cached value when it is fresh: inside the dedup window, or
// settled by another fetch after requested. Otherwise it joins or starts the
// single outstanding fetch for e.
func (s *Store) fetch(ctx context.Context, e *entry, fetcher cache.Fetcher, requested time.Time) (any, error) {
	_, policy := e.registration()

	snap := e.snapshot()
	if snap.HasValue && !snap.Stale {
		if s.windows.Within(policy.DedupingInterval, e.id) || snap.LastFetchedAt.After(requested) {
			return snap.Value, nil
		}
	}

	shared := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(e.id, func() (any, error) {
		return s.run(shared, e, fetcher, policy)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run performs the single outstanding fetch for e.
func (s *Store) run(ctx context.Context, e *entry, fetcher cache.Fetcher, policy cache.Policy) (any, error) {
	e.write(func(e *entry) bool {
		if e.validating {
			return false
		}
		e.validating = true
		return true
	})

	start := s.now()
	value, err := fetcher(ctx)
	if err != nil {
		e.write(func(e *entry) bool {
			e.validating = false
			e.stale = false
			e.err = err
			return true
		})

		s.logger.Warn("cache fetch failed",
			zap.String("key", e.key.Redacted()),
			zap.Duration("elapsed", s.now().Sub(start)),
			zap.Error(err),
		)

		s.scheduleRetry(e, policy, err)
		return nil, err
	}

	fetchedAt := s.now()
	s.windows.Remember(policy.DedupingInterval, e.id, fetchedAt)
	e.write(func(e *entry) bool {
		e.stopRetryLocked()
		e.validating = false
		e.value = value
		e.hasValue = true
		e.err = nil
		e.stale = false
		e.optimistic = false
		e.fetchedAt = fetchedAt
		e.retries = 0
		e.revision = s.revSeq.Add(1)
		return true
	})

	s.logger.Debug("cache fetch settled",
		zap.String("key", e.key.Redacted()),
		zap.Duration("elapsed", fetchedAt.Sub(start)),
	)

	return value, nil
}

func (s *Store) scheduleRetry(e *entry, policy cache.Policy, err error) {
	if policy.ErrorRetryCount <= 0 || !s.retryable(err) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.subs) == 0 || e.retries >= policy.ErrorRetryCount || e.retryTimer != nil {
		return
	}

	e.retries++
	attempt := e.retries

	e.retryTimer = time.AfterFunc(policy.ErrorRetryInterval, func() {
		e.mu.Lock()
		e.retryTimer = nil
		fetcher := e.fetcher
		live := len(e.subs) > 0
		e.mu.Unlock()

		if !live || fetcher == nil {
			return
		}

		s.logger.Debug("retrying cache fetch",
			zap.String("key", e.key.Redacted()),
			zap.Int("attempt", attempt),
		)

		_, _ = s.fetch(context.Background(), e, fetcher, s.now())
	})
}
