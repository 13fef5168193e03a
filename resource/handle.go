package resource

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/cache"
)

// State is what a caller renders from a handle.
type State[T any] struct {
	Data    T
	HasData bool

	// IsLoading is true only while no value is cached and the first load is pending.
	IsLoading bool

	// IsValidating is true whenever a fetch is in flight.
	IsValidating bool

	// Optimistic reports that Data is a local write not yet confirmed.
	Optimistic bool

	Err error
}

func stateOf[T any](e cache.Entry) State[T] {
	st := State[T]{
		HasData:      e.HasValue,
		IsValidating: e.IsValidating,
		Optimistic:   e.Optimistic,
		Err:          e.Err,
	}

	if e.HasValue {
		data, err := cache.As[T](e.Value)
		if err != nil {
			st.HasData = false
			st.Err = err
		}
		st.Data = data
	}

	st.IsLoading = !e.HasValue && (e.IsValidating || (e.Err == nil && e.LastFetchedAt.IsZero()))
	return st
}

// settled reports whether the entry reflects a completed fetch.
func settled(e cache.Entry) bool {
	return !e.IsValidating && !e.Stale && (e.HasValue || e.Err != nil)
}

// Handle is a live subscription to one query.
type Handle[T any] struct {
	ctx    context.Context
	store  cache.Store
	policy cache.Policy
	logger *zap.Logger
	bind   func(identity string) cache.OptionalKey

	mu          sync.Mutex
	key         cache.OptionalKey
	unsubscribe func()
	unwatch     func()
	listeners   map[uint64]func(State[T])
	listenerSeq uint64
	changed     chan struct{}
	closed      bool
}

// attach re-keys the handle for identity.
func (h *Handle[T]) attach(identity string) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}

	next := h.bind(identity)
	if sameKey(h.key, next) && (h.unsubscribe != nil || next.IsNone()) {
		h.mu.Unlock()
		return
	}

	if h.unsubscribe != nil {
		h.unsubscribe()
		h.unsubscribe = nil
	}

	h.key = next
	key, ok := next.Get()
	if ok {
		h.unsubscribe = h.store.Subscribe(key, h.onEntry)
	}
	h.mu.Unlock()

	if !ok {
		h.logger.Debug("handle idle")
		h.emit(State[T]{})
		return
	}

	current := h.store.Get(key)
	h.emit(stateOf[T](current))

	if !current.HasValue || current.Stale || current.Err != nil || h.policy.RevalidateOnMount {
		go h.load(key)
	}
}

func sameKey(a, b cache.OptionalKey) bool {
	ka, aok := a.Get()
	kb, bok := b.Get()
	if aok != bok {
		return false
	}
	return !aok || ka.Equal(kb)
}

func (h *Handle[T]) load(key cache.Key) {
	if _, err := h.store.FetchFor(h.ctx, key, nil); err != nil {
		h.logger.Debug("handle fetch failed", zap.String("key", key.Redacted()), zap.Error(err))
	}
}

func (h *Handle[T]) onEntry(e cache.Entry) {
	h.mu.Lock()
	key, ok := h.key.Get()
	current := ok && key.Equal(e.Key)
	h.mu.Unlock()

	if current {
		h.emit(stateOf[T](e))
	}
}

func (h *Handle[T]) emit(st State[T]) {
	h.mu.Lock()
	close(h.changed)
	h.changed = make(chan struct{})
	fns := make([]func(State[T]), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// Key returns the key the handle is bound to.
func (h *Handle[T]) Key() cache.OptionalKey {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.key
}

// State returns the current state.
func (h *Handle[T]) State() State[T] {
	key, ok := h.Key().Get()
	if !ok {
		return State[T]{}
	}
	return stateOf[T](h.store.Get(key))
}

// Mutate writes to the handle's entry. ok is false when the handle has no key.
func (h *Handle[T]) Mutate(ctx context.Context, up cache.Updater, opts cache.MutateOptions) (previous cache.Entry, ok bool) {
	key, ok := h.Key().Get()
	if !ok {
		return cache.Entry{}, false
	}
	previous, _ = h.store.Mutate(ctx, key, up, opts)
	return previous, true
}

// Revalidate refetches the entry and waits for the result.
func (h *Handle[T]) Revalidate(ctx context.Context) (T, error) {
	var zero T

	key, ok := h.Key().Get()
	if !ok {
		return zero, ErrIdle
	}

	h.store.Invalidate(ctx, cache.Exact(key))
	return cache.Fetch[T](ctx, h.store, key, nil)
}

// OnChange registers fn for every state change of the handle.
func (h *Handle[T]) OnChange(fn func(State[T])) (cancel func()) {
	h.mu.Lock()
	if h.listeners == nil {
		h.listeners = make(map[uint64]func(State[T]))
	}
	h.listenerSeq++
	id := h.listenerSeq
	h.listeners[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// Await blocks until the entry holds the result of a completed fetch.
func (h *Handle[T]) Await(ctx context.Context) (T, error) {
	var zero T
	for {
		h.mu.Lock()
		wait := h.changed
		key, ok := h.key.Get()
		closed := h.closed
		h.mu.Unlock()

		if !ok || closed {
			return zero, ErrIdle
		}

		e := h.store.Get(key)
		if settled(e) {
			st := stateOf[T](e)
			return st.Data, st.Err
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close releases the subscription. Cached data stays in the store.
func (h *Handle[T]) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	unsubscribe, unwatch := h.unsubscribe, h.unwatch
	h.unsubscribe, h.unwatch = nil, nil
	h.key = cache.NoKey
	close(h.changed)
	h.changed = make(chan struct{})
	h.listeners = nil
	h.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if unwatch != nil {
		unwatch()
	}
}
