package cacheinfra

import (
	"sync"
	"time"

	"github.com/goliatone/go-query-cache/cache"
)

type subscriber struct {
	id uint64
	fn cache.Listener
}

// entry is the mutable state behind one key. writeMu serializes a write
// together with the notification it causes; mu guards the fields.
type entry struct {
	key cache.Key
	id  string

	writeMu sync.Mutex
	mu      sync.RWMutex

	value      any
	hasValue   bool
	err        error
	validating bool
	fetchedAt  time.Time
	stale      bool
	optimistic bool
	revision   uint64

	fetcher cache.Fetcher
	policy  cache.Policy

	subs       []subscriber
	retries    int
	retryTimer *time.Timer
}

func newEntry(key cache.Key, id string) *entry {
	return &entry{key: key, id: id, policy: cache.DefaultPolicy()}
}

func (e *entry) snapshotLocked() cache.Entry {
	return cache.Entry{
		Key:           e.key,
		Value:         e.value,
		HasValue:      e.hasValue,
		Err:           e.err,
		IsValidating:  e.validating,
		LastFetchedAt: e.fetchedAt,
		Stale:         e.stale,
		Optimistic:    e.optimistic,
		Revision:      e.revision,
	}
}

func (e *entry) snapshot() cache.Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// write applies fn and, when it reports a change, notifies every subscriber
// before the next write on this key may start.
func (e *entry) write(fn func(e *entry) bool) (before, after cache.Entry, changed bool) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	before = e.snapshotLocked()
	changed = fn(e)
	after = e.snapshotLocked()
	subs := append([]subscriber(nil), e.subs...)
	e.mu.Unlock()

	if changed {
		for _, s := range subs {
			s.fn(after)
		}
	}

	return before, after, changed
}

func (e *entry) addSubscriber(id uint64, fn cache.Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, subscriber{id: id, fn: fn})
}

func (e *entry) removeSubscriber(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.id == id {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

func (e *entry) subscribed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs) > 0
}

func (e *entry) registration() (cache.Fetcher, cache.Policy) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fetcher, e.policy
}

func (e *entry) stopRetryLocked() {
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
}
