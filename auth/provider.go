// Package auth tracks the active identity (an opaque bearer token) and
// notifies watchers when it changes.
package auth

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/goliatone/go-query-cache/cache"
)

// ErrNoTokenSource is returned by Refresh when the provider has no token source.
var ErrNoTokenSource = errors.New("auth: no token source configured")

// ChangeKind names the transition that changed the identity.
type ChangeKind int

const (
	ChangeLogin ChangeKind = iota
	ChangeLogout
	ChangeRefresh
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeLogin:
		return "login"
	case ChangeLogout:
		return "logout"
	case ChangeRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Change describes one identity transition.
type Change struct {
	Kind     ChangeKind
	Previous string
	Current  string
}

// Source supplies the current identity and its change notifications.
type Source interface {
	Identity() string
	Watch(fn func(Change)) (cancel func())
}

var _ Source = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithTokenSource sets the source used by Refresh. Tokens are reused while valid.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(p *Provider) {
		if ts != nil {
			p.source = oauth2.ReuseTokenSource(nil, ts)
		}
	}
}

// WithLogger sets the provider logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithIdentity sets the initial identity without notifying anyone.
func WithIdentity(token string) Option {
	return func(p *Provider) {
		p.identity = token
	}
}

// Provider holds the active identity.
type Provider struct {
	mu       sync.RWMutex
	identity string
	watchers map[uint64]func(Change)
	seq      uint64

	// notifyMu keeps notifications in transition order.
	notifyMu sync.Mutex

	source oauth2.TokenSource
	logger *zap.Logger
}

// NewProvider creates a Provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		watchers: make(map[uint64]func(Change)),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Identity returns the current bearer token, or "" when signed out.
func (p *Provider) Identity() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity
}

// Watch registers fn for identity changes. Watchers run in registration order.
func (p *Provider) Watch(fn func(Change)) func() {
	p.mu.Lock()
	p.seq++
	id := p.seq
	p.watchers[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, id)
			p.mu.Unlock()
		})
	}
}

// Login makes token the active identity.
func (p *Provider) Login(token string) {
	p.set(ChangeLogin, token)
}

// Logout clears the active identity.
func (p *Provider) Logout() {
	p.set(ChangeLogout, "")
}

// Refresh pulls a token from the configured source and makes it the active
// identity. A token equal to the current one changes nothing.
func (p *Provider) Refresh(ctx context.Context) error {
	if p.source == nil {
		return ErrNoTokenSource
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tok, err := p.source.Token()
	if err != nil {
		p.logger.Warn("token refresh failed", zap.Error(err))
		return err
	}

	kind := ChangeRefresh
	if p.Identity() == "" {
		kind = ChangeLogin
	}
	p.set(kind, tok.AccessToken)
	return nil
}

func (p *Provider) set(kind ChangeKind, next string) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	prev := p.identity
	if prev == next {
		p.mu.Unlock()
		return
	}
	p.identity = next

	ids := make([]uint64, 0, len(p.watchers))
	for id := range p.watchers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.watchers[id])
	}
	p.mu.Unlock()

	change := Change{Kind: kind, Previous: prev, Current: next}
	p.logger.Info("identity changed",
		zap.Stringer("kind", kind),
		zap.String("previous", cache.Fingerprint(prev)),
		zap.String("current", cache.Fingerprint(next)),
	)

	for _, fn := range fns {
		fn(change)
	}
}

// BindCache purges every entry of the previous identity whenever the identity
// changes away from it.
func BindCache(src Source, store cache.Store, logger *zap.Logger) (cancel func()) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return src.Watch(func(c Change) {
		if c.Previous == "" {
			return
		}
		n := store.Purge(cache.ForIdentity(c.Previous))
		logger.Debug("purged identity cache",
			zap.Stringer("kind", c.Kind),
			zap.String("identity", cache.Fingerprint(c.Previous)),
			zap.Int("count", n),
		)
	})
}
