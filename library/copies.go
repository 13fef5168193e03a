package library

import (
	"context"
	"net/http"
	"slices"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/resource"
)

// CopiesParams selects the copies of one book.
type CopiesParams struct {
	BookID int64
	Paging *Paging
}

// Copies groups the book copy hooks.
type Copies struct {
	OfBook *resource.Query[CopiesParams, Page[BookCopy]]
	All    *resource.Query[*Paging, Page[BookCopy]]
	Create *resource.Mutator[BookCopyRequest, BookCopy]
	Update *resource.Mutator[Update[BookCopyRequest], BookCopy]
	Delete *resource.Mutator[ByID, struct{}]
}

func newCopies(c *Client) Copies {
	return Copies{
		OfBook: query(c, resource.Definition[CopiesParams, Page[BookCopy]]{
			Name:  ResourceBookCopies,
			Ready: func(p CopiesParams) bool { return p.BookID > 0 },
			Fetch: getter[CopiesParams, Page[BookCopy]](c, func(p CopiesParams) string {
				return c.endpoints.bookCopies(p.BookID, p.Paging)
			}),
			Policy: cache.DefaultPolicy(),
		}),
		All: query(c, resource.Definition[*Paging, Page[BookCopy]]{
			Name:   ResourceAllBookCopies,
			Fetch:  getter[*Paging, Page[BookCopy]](c, c.endpoints.allBookCopies),
			Policy: cache.DefaultPolicy(),
		}),
		Create: mutation(c, resource.MutationDef[BookCopyRequest, BookCopy]{
			Name: "create-book-copy",
			Plan: planCreateCopy,
			Commit: func(ctx context.Context, identity string, req BookCopyRequest) (BookCopy, error) {
				return send[BookCopy](ctx, c, http.MethodPost, c.endpoints.collection("book-copies"), identity, req)
			},
		}),
		Update: mutation(c, resource.MutationDef[Update[BookCopyRequest], BookCopy]{
			Name: "update-book-copy",
			Plan: planUpdateCopy,
			Commit: func(ctx context.Context, identity string, req Update[BookCopyRequest]) (BookCopy, error) {
				return send[BookCopy](ctx, c, http.MethodPut, c.endpoints.bookCopy(req.ID), identity, req.Data)
			},
		}),
		Delete: mutation(c, resource.MutationDef[ByID, struct{}]{
			Name: "delete-book-copy",
			Plan: planDeleteCopy,
			Commit: func(ctx context.Context, identity string, req ByID) (struct{}, error) {
				return remove(ctx, c, c.endpoints.bookCopy(req.ID), identity)
			},
		}),
	}
}

func copyLists(scope resource.Scope) []cache.Key {
	return append(scope.KeysOf(ResourceBookCopies), scope.KeysOf(ResourceAllBookCopies)...)
}

func applyCopyRequest(cp BookCopy, req BookCopyRequest) BookCopy {
	cp.BookID = req.BookID
	cp.LibraryID = req.LibraryID
	cp.InventoryNumber = req.InventoryNumber
	cp.Available = req.Available
	return cp
}

func planCreateCopy(scope resource.Scope, req BookCopyRequest) resource.Plan[BookCopy] {
	temp := scope.TempID()
	draft := applyCopyRequest(BookCopy{ID: temp}, req)

	var effects []resource.Effect[BookCopy]
	for _, key := range keysWhere(scope, ResourceBookCopies, func(p CopiesParams) bool { return p.BookID == req.BookID }) {
		effects = append(effects, resource.Effect[BookCopy]{
			Key: key,
			Apply: editPage(func(items []BookCopy) []BookCopy {
				return append(slices.Clone(items), draft)
			}),
			Reconcile: reconcilePage(func(items []BookCopy, res BookCopy) []BookCopy {
				return replaceByID(items, temp, res)
			}),
		})
	}

	return resource.Plan[BookCopy]{
		Effects:    effects,
		Invalidate: []cache.Resource{ResourceAllBookCopies, ResourceLibraryCopies, ResourceBook, ResourceBooks},
	}
}

func planUpdateCopy(scope resource.Scope, req Update[BookCopyRequest]) resource.Plan[BookCopy] {
	var effects []resource.Effect[BookCopy]
	for _, key := range copyLists(scope) {
		effects = append(effects, resource.Effect[BookCopy]{
			Key: key,
			Apply: editPage(func(items []BookCopy) []BookCopy {
				return editByID(items, req.ID, func(cp BookCopy) BookCopy { return applyCopyRequest(cp, req.Data) })
			}),
			Reconcile: reconcilePage(func(items []BookCopy, res BookCopy) []BookCopy {
				return replaceByID(items, req.ID, res)
			}),
		})
	}

	return resource.Plan[BookCopy]{
		Effects:    effects,
		Invalidate: []cache.Resource{ResourceBookCopies, ResourceLibraryCopies, ResourceBook},
	}
}

func planDeleteCopy(scope resource.Scope, req ByID) resource.Plan[struct{}] {
	var effects []resource.Effect[struct{}]
	for _, key := range copyLists(scope) {
		effects = append(effects, resource.Effect[struct{}]{
			Key: key,
			Apply: editPage(func(items []BookCopy) []BookCopy {
				return removeByID(items, req.ID)
			}),
			Reconcile: reconcileKeep[struct{}],
		})
	}

	return resource.Plan[struct{}]{
		Effects:    effects,
		Invalidate: []cache.Resource{ResourceLibraryCopies, ResourceBook, ResourceBooks},
	}
}
