package library

import (
	"context"
	"net/http"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/resource"
)

// Ratings groups the review hooks.
type Ratings struct {
	List   *resource.Query[*RatingSearch, []Rating]
	Create *resource.Mutator[RatingRequest, Rating]
}

func newRatings(c *Client) Ratings {
	return Ratings{
		List: query(c, resource.Definition[*RatingSearch, []Rating]{
			Name:   ResourceRatings,
			Ready:  func(s *RatingSearch) bool { return s != nil && s.BookID > 0 },
			Fetch:  getter[*RatingSearch, []Rating](c, c.endpoints.ratings),
			Policy: cache.DefaultPolicy(),
		}),
		Create: mutation(c, resource.MutationDef[RatingRequest, Rating]{
			Name: "create-rating",
			Plan: planCreateRating,
			Commit: func(ctx context.Context, identity string, req RatingRequest) (Rating, error) {
				return send[Rating](ctx, c, http.MethodPost, c.endpoints.createRating(), identity, req)
			},
		}),
	}
}

func planCreateRating(scope resource.Scope, req RatingRequest) resource.Plan[Rating] {
	temp := scope.TempID()
	draft := Rating{
		ID:          temp,
		BookID:      req.BookID,
		RatingValue: req.RatingValue,
		Review:      req.Review,
		Time:        stamp(scope),
	}

	var effects []resource.Effect[Rating]
	for _, key := range keysWhere(scope, ResourceRatings, func(s *RatingSearch) bool {
		return s != nil && s.BookID == req.BookID
	}) {
		effects = append(effects, resource.Effect[Rating]{
			Key: key,
			Apply: editList(func(items []Rating) []Rating {
				return prepend(items, draft)
			}),
			Reconcile: reconcileList(func(items []Rating, res Rating) []Rating {
				if containsID(items, temp) {
					return replaceByID(items, temp, res)
				}
				return prepend(items, res)
			}),
		})
	}

	return resource.Plan[Rating]{
		Effects:    effects,
		Invalidate: []cache.Resource{ResourceRatings, ResourceBook, ResourceBooks},
	}
}
