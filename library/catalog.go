package library

import (
	"context"
	"net/http"
	"slices"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/resource"
)

// Catalog groups the hooks of a reference resource (authors, genres, themes,
// publishers, libraries). The whole list is one cache entry.
type Catalog[T identified, R any] struct {
	List   *resource.Query[None, []T]
	Create *resource.Mutator[R, T]
	Update *resource.Mutator[Update[R], T]
	Delete *resource.Mutator[ByID, struct{}]
}

type catalogSpec[T identified, R any] struct {
	name  cache.Resource
	draft func(id int64, req R) T

	// related resources embed this one and go stale when it changes.
	related []cache.Resource
}

func newCatalog[T identified, R any](c *Client, spec catalogSpec[T, R]) Catalog[T, R] {
	path := string(spec.name)

	return Catalog[T, R]{
		List: query(c, resource.Definition[None, []T]{
			Name: spec.name,
			Fetch: getter[None, []T](c, func(None) string {
				return c.endpoints.collection(path)
			}),
			Policy: cache.ReferencePolicy(),
		}),
		Create: mutation(c, resource.MutationDef[R, T]{
			Name: "create-" + path,
			Plan: spec.planCreate,
			Commit: func(ctx context.Context, identity string, req R) (T, error) {
				return send[T](ctx, c, http.MethodPost, c.endpoints.collection(path), identity, req)
			},
		}),
		Update: mutation(c, resource.MutationDef[Update[R], T]{
			Name: "update-" + path,
			Plan: spec.planUpdate,
			Commit: func(ctx context.Context, identity string, req Update[R]) (T, error) {
				return send[T](ctx, c, http.MethodPut, c.endpoints.member(path, req.ID), identity, req.Data)
			},
		}),
		Delete: mutation(c, resource.MutationDef[ByID, struct{}]{
			Name: "delete-" + path,
			Plan: spec.planDelete,
			Commit: func(ctx context.Context, identity string, req ByID) (struct{}, error) {
				return remove(ctx, c, c.endpoints.member(path, req.ID), identity)
			},
		}),
	}
}

func (s catalogSpec[T, R]) list(scope resource.Scope) []cache.Key {
	return cached(scope, scope.Key(s.name, None{}))
}

func (s catalogSpec[T, R]) planCreate(scope resource.Scope, req R) resource.Plan[T] {
	temp := scope.TempID()
	draft := s.draft(temp, req)

	var effects []resource.Effect[T]
	for _, key := range s.list(scope) {
		effects = append(effects, resource.Effect[T]{
			Key: key,
			Apply: editList(func(items []T) []T {
				return append(slices.Clone(items), draft)
			}),
			Reconcile: reconcileList(func(items []T, res T) []T {
				return replaceByID(items, temp, res)
			}),
		})
	}

	return resource.Plan[T]{Effects: effects, Invalidate: []cache.Resource{s.name}}
}

func (s catalogSpec[T, R]) planUpdate(scope resource.Scope, req Update[R]) resource.Plan[T] {
	draft := s.draft(req.ID, req.Data)

	var effects []resource.Effect[T]
	for _, key := range s.list(scope) {
		effects = append(effects, resource.Effect[T]{
			Key: key,
			Apply: editList(func(items []T) []T {
				return replaceByID(items, req.ID, draft)
			}),
			Reconcile: reconcileList(func(items []T, res T) []T {
				return replaceByID(items, req.ID, res)
			}),
		})
	}

	return resource.Plan[T]{Effects: effects, Invalidate: append([]cache.Resource{s.name}, s.related...)}
}

func (s catalogSpec[T, R]) planDelete(scope resource.Scope, req ByID) resource.Plan[struct{}] {
	var effects []resource.Effect[struct{}]
	for _, key := range s.list(scope) {
		effects = append(effects, resource.Effect[struct{}]{
			Key: key,
			Apply: editList(func(items []T) []T {
				return removeByID(items, req.ID)
			}),
			Reconcile: reconcileKeep[struct{}],
		})
	}

	return resource.Plan[struct{}]{Effects: effects, Invalidate: append([]cache.Resource{s.name}, s.related...)}
}

// Libraries adds the per-library copy listing to the library catalog.
type Libraries struct {
	Catalog[Library, LibraryRequest]
	Copies *resource.Query[int64, []LibraryCopy]
}

func newLibraries(c *Client) Libraries {
	return Libraries{
		Catalog: newCatalog(c, catalogSpec[Library, LibraryRequest]{
			name: ResourceLibraries,
			draft: func(id int64, r LibraryRequest) Library {
				return Library{ID: id, Name: r.Name, Address: r.Address}
			},
			related: []cache.Resource{ResourceBookCopies, ResourceAllBookCopies, ResourceLibraryCopies},
		}),
		Copies: query(c, resource.Definition[int64, []LibraryCopy]{
			Name:   ResourceLibraryCopies,
			Ready:  positive,
			Fetch:  getter[int64, []LibraryCopy](c, c.endpoints.libraryCopies),
			Policy: cache.DefaultPolicy(),
		}),
	}
}
