package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoFetcher is returned when a key is fetched before any fetcher was registered for it.
	ErrNoFetcher = errors.New("cache: no fetcher registered for key")

	// ErrInvalidResultType is returned by the typed helpers when a cached value has an unexpected type.
	ErrInvalidResultType = errors.New("cache: cached value has unexpected type")
)

// KeySerializer builds the canonical string for a resource name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(resource string, args ...any) string
}

// Fetcher loads the authoritative value for a key.
type Fetcher func(ctx context.Context) (any, error)

// FetchFn is the typed form of Fetcher.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Erase adapts a typed fetch function to a Fetcher.
func Erase[T any](fn FetchFn[T]) Fetcher {
	return func(ctx context.Context) (any, error) {
		return fn(ctx)
	}
}

// Listener receives the entry snapshot after every change to a key.
type Listener func(Entry)

// Updater computes a new value from the current one. ok reports whether a
// value is present; returning false leaves the entry without a value.
type Updater func(current any, ok bool) (any, bool)

// Set returns an Updater that writes v regardless of the current value.
func Set(v any) Updater {
	return func(any, bool) (any, bool) {
		return v, true
	}
}

// Clear returns an Updater that removes the value.
func Clear() Updater {
	return func(any, bool) (any, bool) {
		return nil, false
	}
}

// MutateOptions control a Mutate call.
type MutateOptions struct {
	// Revalidate triggers a fresh fetch after the write.
	Revalidate bool
	// Optimistic tags the written value as unconfirmed by the server.
	Optimistic bool
}

// Entry is an immutable snapshot of one cache entry.
type Entry struct {
	Key           Key
	Value         any
	HasValue      bool
	Err           error
	IsValidating  bool
	LastFetchedAt time.Time
	Stale         bool
	Optimistic    bool
	Revision      uint64
}

// Trigger is an external event that may revalidate subscribed keys.
type Trigger int

const (
	// TriggerFocus fires when the application regains focus.
	TriggerFocus Trigger = iota
	// TriggerReconnect fires when network connectivity is restored.
	TriggerReconnect
)

func (t Trigger) String() string {
	switch t {
	case TriggerFocus:
		return "focus"
	case TriggerReconnect:
		return "reconnect"
	default:
		return "unknown"
	}
}

// Store is the process-wide keyed cache shared by read and mutation hooks.
// Values are always replaced wholesale; callers never edit a stored value in place.
type Store interface {
	// Get returns the current entry for key. It never blocks and never creates entries.
	Get(key Key) Entry

	// Keys lists the existing keys matching pred.
	Keys(pred Predicate) []Key

	// Subscribe registers fn for changes to key and returns the disposer.
	// Listeners must not write to the same key synchronously.
	Subscribe(key Key, fn Listener) (unsubscribe func())

	// Register records the fetcher and policy used when the store revalidates key on its own.
	Register(key Key, fetcher Fetcher, policy Policy)

	// Mutate applies up synchronously, notifies subscribers and optionally revalidates.
	// It returns the entry as it was before the call and the revision of the write.
	Mutate(ctx context.Context, key Key, up Updater, opts MutateOptions) (previous Entry, revision uint64)

	// Rollback restores previous if key still holds the write identified by revision.
	Rollback(ctx context.Context, key Key, previous Entry, revision uint64) bool

	// Reconcile applies up as a confirmed write if key exists and, for a
	// non-zero revision, still holds that write. It never creates entries.
	Reconcile(ctx context.Context, key Key, revision uint64, up Updater) bool

	// Invalidate marks matching entries stale and refetches the subscribed ones.
	Invalidate(ctx context.Context, pred Predicate) int

	// Purge drops matching entries entirely.
	Purge(pred Predicate) int

	// FetchFor fetches key, joining an in-flight fetch if there is one.
	// A nil fetcher uses the registered one.
	FetchFor(ctx context.Context, key Key, fetcher Fetcher) (any, error)

	// Revalidate refetches subscribed keys matching pred whose policy reacts to trigger.
	Revalidate(ctx context.Context, trigger Trigger, pred Predicate) int

	// MutateMatching applies up to every matching key. A nil updater only revalidates.
	MutateMatching(ctx context.Context, pred Predicate, up Updater, opts MutateOptions) int
}

// Fetch is a type-safe wrapper around Store.FetchFor.
func Fetch[T any](ctx context.Context, store Store, key Key, fn FetchFn[T]) (T, error) {
	var zero T

	var fetcher Fetcher
	if fn != nil {
		fetcher = Erase(fn)
	}

	result, err := store.FetchFor(ctx, key, fetcher)
	if err != nil {
		return zero, err
	}

	return As[T](result)
}

// As converts a cached value to T. A nil value yields the zero T.
func As[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, ErrInvalidResultType
	}
	return typed, nil
}
