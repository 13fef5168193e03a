package resource

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/apierr"
	"github.com/goliatone/go-query-cache/auth"
	"github.com/goliatone/go-query-cache/cache"
)

var (
	// ErrNotReady is returned when the parameters do not derive a key yet.
	ErrNotReady = errors.New("resource: parameters not ready")

	// ErrIdle is returned by Handle.Await when the handle has no key.
	ErrIdle = errors.New("resource: handle has no key")
)

// Definition binds a resource name to the way it is fetched.
type Definition[P, T any] struct {
	Name cache.Resource

	// Ready reports whether params are complete enough to fetch. A nil Ready
	// accepts every value.
	Ready func(P) bool

	Fetch  func(ctx context.Context, identity string, params P) (T, error)
	Policy cache.Policy
}

// Option configures queries and mutations.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Query is the read side of one resource.
type Query[P, T any] struct {
	store      cache.Store
	identities auth.Source
	def        Definition[P, T]
	logger     *zap.Logger
}

// NewQuery creates a Query.
func NewQuery[P, T any](store cache.Store, identities auth.Source, def Definition[P, T], opts ...Option) *Query[P, T] {
	o := buildOptions(opts)
	return &Query[P, T]{
		store:      store,
		identities: identities,
		def:        def,
		logger:     o.logger.With(zap.String("resource", string(def.Name))),
	}
}

// Name returns the resource name.
func (q *Query[P, T]) Name() cache.Resource {
	return q.def.Name
}

// Key derives the cache key for params under identity.
func (q *Query[P, T]) Key(identity string, params P) cache.OptionalKey {
	if q.def.Ready != nil && !q.def.Ready(params) {
		return cache.NoKey
	}
	return cache.KeyFor(q.def.Name, identity, params)
}

func (q *Query[P, T]) fetcher(identity string, params P) cache.Fetcher {
	return cache.Erase(func(ctx context.Context) (T, error) {
		return q.def.Fetch(ctx, identity, params)
	})
}

// bind derives the key for the current identity and registers its fetcher.
func (q *Query[P, T]) bind(identity string, params P) cache.OptionalKey {
	key, ok := q.Key(identity, params).Get()
	if !ok {
		return cache.NoKey
	}
	q.store.Register(key, q.fetcher(identity, params), q.def.Policy)
	return cache.Some(key)
}

// Get fetches params once for the current identity, served from the cache when fresh.
func (q *Query[P, T]) Get(ctx context.Context, params P) (T, error) {
	var zero T

	identity := q.identities.Identity()
	if identity == "" {
		return zero, apierr.New(apierr.KindUnauthorized, "no identity provided")
	}

	key, ok := q.bind(identity, params).Get()
	if !ok {
		return zero, ErrNotReady
	}

	return cache.Fetch[T](ctx, q.store, key, nil)
}

// Peek returns the cached state for params without fetching.
func (q *Query[P, T]) Peek(params P) State[T] {
	key := q.Key(q.identities.Identity(), params)
	k, ok := key.Get()
	if !ok {
		return State[T]{}
	}
	return stateOf[T](q.store.Get(k))
}

// Use opens a live handle on params. The handle follows identity changes
// until it is closed.
func (q *Query[P, T]) Use(ctx context.Context, params P) *Handle[T] {
	h := &Handle[T]{
		ctx:     context.WithoutCancel(ctx),
		store:   q.store,
		policy:  q.def.Policy,
		logger:  q.logger,
		changed: make(chan struct{}),
		bind: func(identity string) cache.OptionalKey {
			return q.bind(identity, params)
		},
	}

	h.attach(q.identities.Identity())
	unwatch := q.identities.Watch(func(c auth.Change) {
		h.attach(c.Current)
	})

	h.mu.Lock()
	h.unwatch = unwatch
	h.mu.Unlock()

	return h
}
