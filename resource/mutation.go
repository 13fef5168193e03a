package resource

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/apierr"
	"github.com/goliatone/go-query-cache/auth"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/transport"
)

// Phase is a step of one mutation call.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseApplying
	PhaseCommitting
	PhaseReconciled
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseApplying:
		return "applying"
	case PhaseCommitting:
		return "committing"
	case PhaseReconciled:
		return "reconciled"
	case PhaseRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Transition is reported to observers each time a call changes phase.
type Transition struct {
	CallID string
	Phase  Phase
	Err    error
}

// Effect is one key a mutation rewrites.
type Effect[Res any] struct {
	Key cache.Key

	// Apply writes the speculative value before the commit. Nil skips the
	// optimistic write for this key.
	Apply cache.Updater

	// Reconcile writes the authoritative value after a successful commit,
	// provided the key still holds this call's Apply write. A nil Reconcile or
	// a superseded key invalidates the key instead.
	Reconcile func(current any, ok bool, res Res) (any, bool)
}

// Plan lists what a mutation call touches.
type Plan[Res any] struct {
	Effects []Effect[Res]

	// Invalidate names resources whose other keys may be stale after a
	// successful commit.
	Invalidate []cache.Resource
}

// Scope is what a plan may consult while it is built.
type Scope struct {
	Identity string

	store cache.Store
	now   func() time.Time
	temp  *atomic.Int64
}

// Keys lists the cached keys matching pred.
func (s Scope) Keys(pred cache.Predicate) []cache.Key {
	return s.store.Keys(pred)
}

// KeysOf lists the cached keys of the named resources for the scope identity.
func (s Scope) KeysOf(names ...cache.Resource) []cache.Key {
	return s.store.Keys(cache.ForResource(s.Identity, names...))
}

// Cached reports whether key has an entry in the store.
func (s Scope) Cached(key cache.Key) bool {
	return len(s.store.Keys(cache.Exact(key))) > 0
}

// Key builds a key for the scope identity.
func (s Scope) Key(name cache.Resource, params any) cache.Key {
	return cache.NewKey(name, s.Identity, params)
}

// Now returns the current time.
func (s Scope) Now() time.Time {
	return s.now()
}

// TempID returns a negative id for a record the server has not created yet.
func (s Scope) TempID() int64 {
	return s.temp.Add(-1)
}

// MutationDef describes one write operation.
type MutationDef[Req, Res any] struct {
	Name   string
	Plan   func(scope Scope, req Req) Plan[Res]
	Commit func(ctx context.Context, identity string, req Req) (Res, error)
}

// Mutator performs a write with optimistic apply, commit, then reconcile or rollback.
type Mutator[Req, Res any] struct {
	store      cache.Store
	identities auth.Source
	def        MutationDef[Req, Res]
	logger     *zap.Logger
	now        func() time.Time
	temp       *atomic.Int64

	mu        sync.Mutex
	inflight  int
	lastErr   error
	observers map[uint64]func(Transition)
	obsSeq    uint64
}

var tempIDs atomic.Int64

// NewMutation creates a Mutator.
func NewMutation[Req, Res any](store cache.Store, identities auth.Source, def MutationDef[Req, Res], opts ...Option) *Mutator[Req, Res] {
	o := buildOptions(opts)
	return &Mutator[Req, Res]{
		store:      store,
		identities: identities,
		def:        def,
		logger:     o.logger.With(zap.String("mutation", def.Name)),
		now:        time.Now,
		temp:       &tempIDs,
	}
}

type applied struct {
	key      cache.Key
	previous cache.Entry
	revision uint64
}

// Perform runs one call. On failure every key this call wrote is restored
// before the classified error is returned.
func (m *Mutator[Req, Res]) Perform(ctx context.Context, req Req) (Res, error) {
	var zero Res

	callID := uuid.NewString()
	ctx = transport.WithTags(ctx, "mutation:"+m.def.Name, "call:"+callID)
	logger := m.logger.With(zap.String("call_id", callID))

	identity := m.identities.Identity()
	if identity == "" {
		err := apierr.New(apierr.KindUnauthorized, "no identity provided")
		m.settle(err)
		return zero, err
	}

	if v, ok := any(req).(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			err = apierr.FromValidation(err)
			logger.Debug("mutation rejected", zap.Error(err))
			m.settle(err)
			return zero, err
		}
	}

	m.begin()
	m.notify(Transition{CallID: callID, Phase: PhaseApplying})

	var plan Plan[Res]
	if m.def.Plan != nil {
		plan = m.def.Plan(Scope{Identity: identity, store: m.store, now: m.now, temp: m.temp}, req)
	}

	writes := make([]applied, 0, len(plan.Effects))
	for _, eff := range plan.Effects {
		if eff.Apply == nil {
			continue
		}
		prev, rev := m.store.Mutate(ctx, eff.Key, eff.Apply, cache.MutateOptions{Optimistic: true})
		writes = append(writes, applied{key: eff.Key, previous: prev, revision: rev})
	}

	m.notify(Transition{CallID: callID, Phase: PhaseCommitting})

	res, err := m.def.Commit(ctx, identity, req)
	if err != nil {
		err = apierr.Classify(err)
		m.rollback(ctx, logger, writes)
		logger.Warn("mutation rolled back", zap.Int("keys", len(writes)), zap.Error(err))
		m.end(err)
		m.notify(Transition{CallID: callID, Phase: PhaseRolledBack, Err: err})
		return zero, err
	}

	m.reconcile(ctx, logger, identity, plan, writes, res)
	m.end(nil)
	m.notify(Transition{CallID: callID, Phase: PhaseReconciled})

	return res, nil
}

// rollback restores this call's writes in reverse order. A key written again
// since is refetched rather than restored.
func (m *Mutator[Req, Res]) rollback(ctx context.Context, logger *zap.Logger, writes []applied) {
	for i := len(writes) - 1; i >= 0; i-- {
		w := writes[i]
		if m.store.Rollback(ctx, w.key, w.previous, w.revision) {
			continue
		}
		logger.Debug("rollback superseded, invalidating", zap.String("key", w.key.Redacted()))
		m.store.Invalidate(ctx, cache.Exact(w.key))
	}
}

// reconcile writes the server response into the keys this call still owns.
// Keys another write took over since Apply are refetched instead. Nothing is
// written once the identity that issued the call is gone.
func (m *Mutator[Req, Res]) reconcile(ctx context.Context, logger *zap.Logger, identity string, plan Plan[Res], writes []applied, res Res) {
	if current := m.identities.Identity(); current != identity {
		logger.Debug("identity changed during commit, skipping reconcile")
		return
	}

	revisions := make(map[string]uint64, len(writes))
	for _, w := range writes {
		revisions[w.key.String()] = w.revision
	}

	rewritten := make(map[string]struct{}, len(plan.Effects))
	var stale []cache.Key

	for _, eff := range plan.Effects {
		if eff.Reconcile == nil {
			stale = append(stale, eff.Key)
			continue
		}
		id := eff.Key.String()
		reconcile := eff.Reconcile
		confirmed := m.store.Reconcile(ctx, eff.Key, revisions[id], func(cur any, ok bool) (any, bool) {
			return reconcile(cur, ok, res)
		})
		if !confirmed {
			logger.Debug("reconcile superseded, invalidating", zap.String("key", eff.Key.Redacted()))
			stale = append(stale, eff.Key)
			continue
		}
		rewritten[id] = struct{}{}
	}

	logger.Debug("mutation reconciled", zap.Int("keys", len(rewritten)), zap.Int("stale", len(stale)))

	settled := rewritten
	for _, key := range stale {
		m.store.Invalidate(ctx, cache.Exact(key))
		settled[key.String()] = struct{}{}
	}

	if len(plan.Invalidate) == 0 {
		return
	}
	m.store.Invalidate(ctx, cache.And(
		cache.ForResource(identity, plan.Invalidate...),
		func(k cache.Key) bool {
			_, ok := settled[k.String()]
			return !ok
		},
	))
}

func (m *Mutator[Req, Res]) begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight++
}

func (m *Mutator[Req, Res]) end(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
	m.lastErr = err
}

func (m *Mutator[Req, Res]) settle(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
}

// IsLoading reports whether any call is in flight.
func (m *Mutator[Req, Res]) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight > 0
}

// Err returns the error of the most recently settled call.
func (m *Mutator[Req, Res]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Observe registers fn for phase transitions of every call.
func (m *Mutator[Req, Res]) Observe(fn func(Transition)) (cancel func()) {
	m.mu.Lock()
	if m.observers == nil {
		m.observers = make(map[uint64]func(Transition))
	}
	m.obsSeq++
	id := m.obsSeq
	m.observers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

func (m *Mutator[Req, Res]) notify(t Transition) {
	m.mu.Lock()
	ids := make([]uint64, 0, len(m.observers))
	for id := range m.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Transition), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.observers[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(t)
	}
}
