package library

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/resource"
)

// Transactions groups the reservation hooks.
type Transactions struct {
	List          *resource.Query[*TransactionSearch, []Transaction]
	Get           *resource.Query[int64, Transaction]
	ReadingStatus *resource.Query[int64, ReadingStatus]

	Create  *resource.Mutator[TransactionRequest, Transaction]
	Approve *resource.Mutator[ByID, Transaction]
	Decline *resource.Mutator[DeclineRequest, Transaction]
	Cancel  *resource.Mutator[ByID, struct{}]
	Return  *resource.Mutator[ReturnRequest, Transaction]
}

func newTransactions(c *Client) Transactions {
	return Transactions{
		List: query(c, resource.Definition[*TransactionSearch, []Transaction]{
			Name: ResourceTransactions,
			Ready: func(s *TransactionSearch) bool {
				return s != nil && (s.LibraryID > 0 || s.UserID != "")
			},
			Fetch:  getter[*TransactionSearch, []Transaction](c, c.endpoints.transactions),
			Policy: cache.DefaultPolicy(),
		}),
		Get: query(c, resource.Definition[int64, Transaction]{
			Name:   ResourceTransaction,
			Ready:  positive,
			Fetch:  getter[int64, Transaction](c, c.endpoints.transaction),
			Policy: cache.DefaultPolicy(),
		}),
		ReadingStatus: query(c, resource.Definition[int64, ReadingStatus]{
			Name:   ResourceReadingStatus,
			Ready:  positive,
			Fetch:  getter[int64, ReadingStatus](c, c.endpoints.readingStatus),
			Policy: cache.DefaultPolicy(),
		}),
		Create: mutation(c, resource.MutationDef[TransactionRequest, Transaction]{
			Name: "create-transaction",
			Plan: planCreateTransaction,
			Commit: func(ctx context.Context, identity string, req TransactionRequest) (Transaction, error) {
				body := struct {
					LibraryID int64 `json:"libraryId"`
				}{req.LibraryID}
				return send[Transaction](ctx, c, http.MethodPost, c.endpoints.createTransaction(req.BookID), identity, body)
			},
		}),
		Approve: mutation(c, resource.MutationDef[ByID, Transaction]{
			Name: "approve-transaction",
			Plan: func(scope resource.Scope, req ByID) resource.Plan[Transaction] {
				return planTransactionStatus(scope, req.ID, StatusApproved)
			},
			Commit: func(ctx context.Context, identity string, req ByID) (Transaction, error) {
				return send[Transaction](ctx, c, http.MethodPost, c.endpoints.transactionAction(req.ID, "approve"), identity, nil)
			},
		}),
		Decline: mutation(c, resource.MutationDef[DeclineRequest, Transaction]{
			Name: "decline-transaction",
			Plan: func(scope resource.Scope, req DeclineRequest) resource.Plan[Transaction] {
				return planTransactionStatus(scope, req.ID, StatusDeclined)
			},
			Commit: func(ctx context.Context, identity string, req DeclineRequest) (Transaction, error) {
				return send[Transaction](ctx, c, http.MethodPost, c.endpoints.transactionAction(req.ID, "decline"), identity, req)
			},
		}),
		Cancel: mutation(c, resource.MutationDef[ByID, struct{}]{
			Name: "cancel-transaction",
			Plan: planCancelTransaction,
			Commit: func(ctx context.Context, identity string, req ByID) (struct{}, error) {
				return remove(ctx, c, c.endpoints.transaction(req.ID), identity)
			},
		}),
		Return: mutation(c, resource.MutationDef[ReturnRequest, Transaction]{
			Name: "return-transaction",
			Plan: planReturnTransaction,
			Commit: func(ctx context.Context, identity string, req ReturnRequest) (Transaction, error) {
				var body any
				if req.InvNumber != "" {
					body = req
				}
				return send[Transaction](ctx, c, http.MethodPost, c.endpoints.returnTransaction(), identity, body)
			},
		}),
	}
}

func stamp(scope resource.Scope) string {
	return scope.Now().UTC().Format(time.RFC3339)
}

func withStatus(status, at string) func(Transaction) Transaction {
	return func(t Transaction) Transaction {
		t.Status = status
		t.UpdatedAt = at
		return t
	}
}

func planCreateTransaction(scope resource.Scope, req TransactionRequest) resource.Plan[Transaction] {
	temp := scope.TempID()
	at := stamp(scope)
	draft := Transaction{ID: temp, Status: StatusPending, CreatedAt: at, UpdatedAt: at}

	var effects []resource.Effect[Transaction]
	for _, key := range keysWhere(scope, ResourceTransactions, func(s *TransactionSearch) bool {
		return s != nil && s.LibraryID == req.LibraryID
	}) {
		effects = append(effects, resource.Effect[Transaction]{
			Key: key,
			Apply: editList(func(items []Transaction) []Transaction {
				return prepend(items, draft)
			}),
			Reconcile: reconcileList(func(items []Transaction, res Transaction) []Transaction {
				return replaceByID(items, temp, res)
			}),
		})
	}

	for _, key := range cached(scope, scope.Key(ResourceReadingStatus, req.BookID)) {
		effects = append(effects, resource.Effect[Transaction]{
			Key: key,
			Apply: editItem(func(rs ReadingStatus) ReadingStatus {
				rs.TransactionID = temp
				return rs
			}),
		})
	}

	return resource.Plan[Transaction]{
		Effects:    effects,
		Invalidate: []cache.Resource{ResourceTransactions, ResourceBookCopies, ResourceAllBookCopies, ResourceBook, ResourceBooks},
	}
}

// planTransactionStatus moves transaction id to status in every cached list
// and in its detail entry.
func planTransactionStatus(scope resource.Scope, id int64, status string) resource.Plan[Transaction] {
	set := withStatus(status, stamp(scope))

	var effects []resource.Effect[Transaction]
	for _, key := range scope.KeysOf(ResourceTransactions) {
		effects = append(effects, resource.Effect[Transaction]{
			Key: key,
			Apply: editList(func(items []Transaction) []Transaction {
				return editByID(items, id, set)
			}),
			Reconcile: reconcileList(func(items []Transaction, res Transaction) []Transaction {
				return replaceByID(items, id, res)
			}),
		})
	}

	for _, key := range cached(scope, scope.Key(ResourceTransaction, id)) {
		effects = append(effects, resource.Effect[Transaction]{
			Key:       key,
			Apply:     editItem(set),
			Reconcile: reconcileSet[Transaction],
		})
	}

	return resource.Plan[Transaction]{
		Effects:    effects,
		Invalidate: []cache.Resource{ResourceTransactions, ResourceReadingStatus, ResourceBookCopies},
	}
}

func planCancelTransaction(scope resource.Scope, req ByID) resource.Plan[struct{}] {
	set := withStatus(StatusCanceled, stamp(scope))

	var effects []resource.Effect[struct{}]
	for _, key := range scope.KeysOf(ResourceTransactions) {
		effects = append(effects, resource.Effect[struct{}]{
			Key: key,
			Apply: editList(func(items []Transaction) []Transaction {
				return editByID(items, req.ID, set)
			}),
		})
	}

	for _, key := range cached(scope, scope.Key(ResourceTransaction, req.ID)) {
		effects = append(effects, resource.Effect[struct{}]{Key: key, Apply: editItem(set)})
	}

	return resource.Plan[struct{}]{
		Effects:    effects,
		Invalidate: []cache.Resource{ResourceReadingStatus, ResourceBookCopies, ResourceAllBookCopies, ResourceBooks},
	}
}

func planReturnTransaction(scope resource.Scope, req ReturnRequest) resource.Plan[Transaction] {
	at := stamp(scope)
	returned := func(items []Transaction) []Transaction {
		out := make([]Transaction, len(items))
		for i, t := range items {
			if req.InvNumber != "" && t.InventoryID == req.InvNumber && t.Status == StatusApproved {
				t = withStatus(StatusReturned, at)(t)
			}
			out[i] = t
		}
		return out
	}

	var effects []resource.Effect[Transaction]
	for _, key := range scope.KeysOf(ResourceTransactions) {
		effects = append(effects, resource.Effect[Transaction]{
			Key:   key,
			Apply: editList(returned),
			Reconcile: reconcileList(func(items []Transaction, res Transaction) []Transaction {
				return replaceByID(items, res.ID, res)
			}),
		})
	}

	return resource.Plan[Transaction]{
		Effects: effects,
		Invalidate: []cache.Resource{
			ResourceTransactions, ResourceTransaction, ResourceReadingStatus,
			ResourceBookCopies, ResourceAllBookCopies, ResourceLibraryCopies, ResourceBook, ResourceBooks,
		},
	}
}
