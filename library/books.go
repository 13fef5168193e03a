package library

import (
	"context"
	"net/http"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/resource"
)

// Books groups the book hooks.
type Books struct {
	List   *resource.Query[*BookSearch, Page[Book]]
	Get    *resource.Query[int64, Book]
	Create *resource.Mutator[BookRequest, Book]
	Update *resource.Mutator[Update[BookRequest], Book]
	Delete *resource.Mutator[ByID, struct{}]
}

func newBooks(c *Client) Books {
	return Books{
		List: query(c, resource.Definition[*BookSearch, Page[Book]]{
			Name:   ResourceBooks,
			Fetch:  getter[*BookSearch, Page[Book]](c, c.endpoints.books),
			Policy: cache.VolatilePolicy(),
		}),
		Get: query(c, resource.Definition[int64, Book]{
			Name:   ResourceBook,
			Ready:  positive,
			Fetch:  getter[int64, Book](c, c.endpoints.book),
			Policy: cache.DefaultPolicy(),
		}),
		Create: mutation(c, resource.MutationDef[BookRequest, Book]{
			Name: "create-book",
			Plan: planCreateBook,
			Commit: func(ctx context.Context, identity string, req BookRequest) (Book, error) {
				return send[Book](ctx, c, http.MethodPost, c.endpoints.collection("books"), identity, req)
			},
		}),
		Update: mutation(c, resource.MutationDef[Update[BookRequest], Book]{
			Name: "update-book",
			Plan: planUpdateBook,
			Commit: func(ctx context.Context, identity string, req Update[BookRequest]) (Book, error) {
				return send[Book](ctx, c, http.MethodPut, c.endpoints.book(req.ID), identity, req.Data)
			},
		}),
		Delete: mutation(c, resource.MutationDef[ByID, struct{}]{
			Name: "delete-book",
			Plan: planDeleteBook,
			Commit: func(ctx context.Context, identity string, req ByID) (struct{}, error) {
				return remove(ctx, c, c.endpoints.book(req.ID), identity)
			},
		}),
	}
}

// planCreateBook puts a draft at the head of the unfiltered list. Filtered
// lists are refetched once the book exists since its matches are unknown.
func planCreateBook(scope resource.Scope, req BookRequest) resource.Plan[Book] {
	temp := scope.TempID()
	draft := Book{ID: temp, Title: req.Title, ISBN: req.ISBN, YearPublished: req.YearPublished}

	return resource.Plan[Book]{
		Effects: []resource.Effect[Book]{{
			Key: scope.Key(ResourceBooks, (*BookSearch)(nil)),
			Apply: func(cur any, ok bool) (any, bool) {
				page, isPage := cur.(Page[Book])
				if !ok || !isPage {
					page = Page[Book]{Size: 1, TotalPages: 1}
				}
				page.Content = prepend(page.Content, draft)
				page.TotalElements++
				return page, true
			},
			Reconcile: reconcilePage(func(items []Book, res Book) []Book {
				return replaceByID(items, temp, res)
			}),
		}},
		Invalidate: []cache.Resource{ResourceBooks},
	}
}

func applyBookRequest(b Book, req BookRequest) Book {
	b.Title = req.Title
	b.ISBN = req.ISBN
	b.YearPublished = req.YearPublished
	return b
}

func planUpdateBook(scope resource.Scope, req Update[BookRequest]) resource.Plan[Book] {
	detail := scope.Key(ResourceBook, req.ID)

	effects := []resource.Effect[Book]{{
		Key: detail,
		Apply: func(cur any, ok bool) (any, bool) {
			b, isBook := cur.(Book)
			if !ok || !isBook {
				b = Book{ID: req.ID}
			}
			return applyBookRequest(b, req.Data), true
		},
		Reconcile: reconcileSet[Book],
	}}

	for _, key := range scope.KeysOf(ResourceBooks) {
		effects = append(effects, resource.Effect[Book]{
			Key: key,
			Apply: editPage(func(items []Book) []Book {
				return editByID(items, req.ID, func(b Book) Book { return applyBookRequest(b, req.Data) })
			}),
			Reconcile: reconcilePage(func(items []Book, res Book) []Book {
				return replaceByID(items, req.ID, res)
			}),
		})
	}

	return resource.Plan[Book]{Effects: effects, Invalidate: []cache.Resource{ResourceBooks}}
}

func planDeleteBook(scope resource.Scope, req ByID) resource.Plan[struct{}] {
	var effects []resource.Effect[struct{}]

	for _, key := range cached(scope, scope.Key(ResourceBook, req.ID)) {
		effects = append(effects, resource.Effect[struct{}]{
			Key:       key,
			Apply:     cache.Clear(),
			Reconcile: reconcileClear[struct{}],
		})
	}

	for _, key := range scope.KeysOf(ResourceBooks) {
		effects = append(effects, resource.Effect[struct{}]{
			Key: key,
			Apply: editPage(func(items []Book) []Book {
				return removeByID(items, req.ID)
			}),
			Reconcile: reconcileKeep[struct{}],
		})
	}

	return resource.Plan[struct{}]{
		Effects:    effects,
		Invalidate: []cache.Resource{ResourceBooks, ResourceBookCopies, ResourceAllBookCopies, ResourceLibraryCopies},
	}
}
