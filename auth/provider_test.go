package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/cache/memory"
)

type changes struct {
	mu  sync.Mutex
	all []Change
}

func (c *changes) record(ch Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = append(c.all, ch)
}

func (c *changes) list() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Change(nil), c.all...)
}

func TestLoginLogoutNotify(t *testing.T) {
	p := NewProvider()
	rec := &changes{}
	cancel := p.Watch(rec.record)
	defer cancel()

	p.Login("alice")
	p.Login("alice")
	p.Login("bob")
	p.Logout()

	assert.Equal(t, []Change{
		{Kind: ChangeLogin, Previous: "", Current: "alice"},
		{Kind: ChangeLogin, Previous: "alice", Current: "bob"},
		{Kind: ChangeLogout, Previous: "bob", Current: ""},
	}, rec.list())
	assert.Empty(t, p.Identity())
}

func TestWatchCancel(t *testing.T) {
	p := NewProvider(WithIdentity("alice"))
	rec := &changes{}
	cancel := p.Watch(rec.record)
	cancel()
	cancel()

	p.Logout()
	assert.Empty(t, rec.list())
}

func TestWatchersRunInRegistrationOrder(t *testing.T) {
	p := NewProvider()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		p.Watch(func(Change) { order = append(order, i) })
	}

	p.Login("alice")
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

type staticSource struct {
	token string
	err   error
	calls int
}

func (s *staticSource) Token() (*oauth2.Token, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: s.token}, nil
}

func TestRefresh(t *testing.T) {
	assert.ErrorIs(t, NewProvider().Refresh(context.Background()), ErrNoTokenSource)

	src := &staticSource{token: "t1"}
	p := NewProvider(WithTokenSource(src))
	rec := &changes{}
	p.Watch(rec.record)

	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, "t1", p.Identity())

	// the reuse wrapper keeps a token without expiry
	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, 1, src.calls)

	require.Len(t, rec.list(), 1)
	assert.Equal(t, ChangeLogin, rec.list()[0].Kind)
}

func TestRefreshFailureKeepsIdentity(t *testing.T) {
	boom := errors.New("realm unreachable")
	p := NewProvider(WithIdentity("alice"), WithTokenSource(&staticSource{err: boom}))

	assert.ErrorIs(t, p.Refresh(context.Background()), boom)
	assert.Equal(t, "alice", p.Identity())
}

func TestRefreshHonorsContext(t *testing.T) {
	p := NewProvider(WithTokenSource(&staticSource{token: "t"}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Refresh(ctx), context.Canceled)
	assert.Empty(t, p.Identity())
}

func TestBindCachePurgesPreviousIdentity(t *testing.T) {
	store, err := memory.New(memory.DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	p := NewProvider()
	defer BindCache(p, store, nil)()

	p.Login("alice")
	aliceBook := cache.NewKey("book", "alice", int64(42))
	store.Mutate(ctx, aliceBook, cache.Set("dune"), cache.MutateOptions{})
	store.Mutate(ctx, cache.NewKey("books", "alice", nil), cache.Set("page"), cache.MutateOptions{})
	store.Mutate(ctx, cache.NewKey("book", "carol", int64(42)), cache.Set("emma"), cache.MutateOptions{})

	p.Login("bob")

	assert.Empty(t, store.Keys(cache.ForIdentity("alice")))
	assert.False(t, store.Get(aliceBook).HasValue)
	assert.Len(t, store.Keys(cache.ForIdentity("carol")), 1)

	store.Mutate(ctx, cache.NewKey("book", "bob", int64(1)), cache.Set("x"), cache.MutateOptions{})
	p.Logout()
	assert.Empty(t, store.Keys(cache.ForIdentity("bob")))
}

func TestChangeKindString(t *testing.T) {
	assert.Equal(t, "login", ChangeLogin.String())
	assert.Equal(t, "logout", ChangeLogout.String())
	assert.Equal(t, "refresh", ChangeRefresh.String())
	assert.Equal(t, "unknown", ChangeKind(9).String())
}
