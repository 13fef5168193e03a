// Package library binds the library REST API to the shared cache: one read
// hook per resource and one mutation hook per write operation.
package library

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/auth"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/resource"
	"github.com/goliatone/go-query-cache/transport"
)

// Resource names used in cache keys.
const (
	ResourceBooks         cache.Resource = "books"
	ResourceBook          cache.Resource = "book"
	ResourceBookCopies    cache.Resource = "book-copies"
	ResourceAllBookCopies cache.Resource = "all-book-copies"
	ResourceAuthors       cache.Resource = "authors"
	ResourceGenres        cache.Resource = "genres"
	ResourceThemes        cache.Resource = "themes"
	ResourcePublishers    cache.Resource = "publishers"
	ResourceLibraries     cache.Resource = "libraries"
	ResourceLibraryCopies cache.Resource = "library-copies"
	ResourceTransactions  cache.Resource = "transactions"
	ResourceTransaction   cache.Resource = "transaction"
	ResourceReadingStatus cache.Resource = "reading-status"
	ResourceRatings       cache.Resource = "ratings"
)

// None is the params of resources that take no parameters.
type None struct{}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger passed to every hook.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client exposes the read and mutation hooks of every resource.
type Client struct {
	store      cache.Store
	identities auth.Source
	transport  transport.Transport
	endpoints  Endpoints
	logger     *zap.Logger

	Books        Books
	Copies       Copies
	Authors      Catalog[Author, AuthorRequest]
	Genres       Catalog[Genre, NamedRequest]
	Themes       Catalog[Theme, NamedRequest]
	Publishers   Catalog[Publisher, PublisherRequest]
	Libraries    Libraries
	Transactions Transactions
	Ratings      Ratings
}

// New builds a Client over store, using identities for the bearer token and
// tr for every remote call.
func New(store cache.Store, identities auth.Source, tr transport.Transport, endpoints Endpoints, opts ...Option) *Client {
	c := &Client{
		store:      store,
		identities: identities,
		transport:  tr,
		endpoints:  endpoints,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Books = newBooks(c)
	c.Copies = newCopies(c)
	c.Authors = newCatalog(c, catalogSpec[Author, AuthorRequest]{
		name: ResourceAuthors,
		draft: func(id int64, r AuthorRequest) Author {
			return Author{ID: id, Name: r.Name, Surname: r.Surname, BirthDate: r.BirthDate}
		},
		related: []cache.Resource{ResourceBooks, ResourceBook},
	})
	c.Genres = newCatalog(c, catalogSpec[Genre, NamedRequest]{
		name: ResourceGenres,
		draft: func(id int64, r NamedRequest) Genre {
			return Genre{ID: id, Name: r.Name, Popularity: r.Popularity}
		},
		related: []cache.Resource{ResourceBooks, ResourceBook},
	})
	c.Themes = newCatalog(c, catalogSpec[Theme, NamedRequest]{
		name: ResourceThemes,
		draft: func(id int64, r NamedRequest) Theme {
			return Theme{ID: id, Name: r.Name, Popularity: r.Popularity}
		},
		related: []cache.Resource{ResourceBooks, ResourceBook},
	})
	c.Publishers = newCatalog(c, catalogSpec[Publisher, PublisherRequest]{
		name: ResourcePublishers,
		draft: func(id int64, r PublisherRequest) Publisher {
			return Publisher{ID: id, Name: r.Name, Website: r.Website, Email: r.Email}
		},
		related: []cache.Resource{ResourceBooks, ResourceBook},
	})
	c.Libraries = newLibraries(c)
	c.Transactions = newTransactions(c)
	c.Ratings = newRatings(c)

	return c
}

// Revalidate refetches every subscribed key of the current identity whose
// policy reacts to trigger.
func (c *Client) Revalidate(ctx context.Context, trigger cache.Trigger) int {
	identity := c.identities.Identity()
	if identity == "" {
		return 0
	}
	return c.store.Revalidate(ctx, trigger, cache.ForIdentity(identity))
}

// Refresh revalidates every cached key of the named resources for the current identity.
func (c *Client) Refresh(ctx context.Context, names ...cache.Resource) int {
	identity := c.identities.Identity()
	if identity == "" {
		return 0
	}
	return c.store.MutateMatching(ctx, cache.ForResource(identity, names...), nil, cache.MutateOptions{})
}

func (c *Client) hookOptions(kind string) []resource.Option {
	return []resource.Option{resource.WithLogger(c.logger.Named(kind))}
}

func query[P, T any](c *Client, def resource.Definition[P, T]) *resource.Query[P, T] {
	return resource.NewQuery(c.store, c.identities, def, c.hookOptions("query")...)
}

func mutation[Req, Res any](c *Client, def resource.MutationDef[Req, Res]) *resource.Mutator[Req, Res] {
	return resource.NewMutation(c.store, c.identities, def, c.hookOptions("mutation")...)
}

// getter returns a fetch function decoding url(params) into T.
func getter[P, T any](c *Client, url func(P) string) func(context.Context, string, P) (T, error) {
	return func(ctx context.Context, identity string, params P) (T, error) {
		var out T
		err := c.transport.Get(ctx, url(params), identity, &out)
		return out, err
	}
}

func send[Res any](ctx context.Context, c *Client, method, url, identity string, body any) (Res, error) {
	var out Res
	err := c.transport.Request(ctx, method, url, identity, body, &out)
	return out, err
}

func remove(ctx context.Context, c *Client, url, identity string) (struct{}, error) {
	return struct{}{}, c.transport.Request(ctx, http.MethodDelete, url, identity, nil, nil)
}

func positive(id int64) bool {
	return id > 0
}
