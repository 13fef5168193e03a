// Package resource binds remote resources to the shared cache.Store.
//
// # Overview
//
// A resource has a read side, Query, and any number of write operations,
// Mutator. Both work on the same keyed store so every view of a record is
// updated from one place.
//
// # Reading
//
// A Definition names the resource and says how to fetch it:
//
//	books := resource.NewQuery(store, provider, resource.Definition[*BookSearch, Page[Book]]{
//		Name:   "books",
//		Fetch:  client.fetchBooks,
//		Policy: cache.VolatilePolicy(),
//	})
//
//	h := books.Use(ctx, &BookSearch{Name: "dune"})
//	defer h.Close()
//
//	st := h.State() // Data, HasData, IsLoading, IsValidating, Err
//
// The key is derived from the resource name, the params and the current
// identity. A missing identity or params rejected by Ready leave the handle
// idle: no subscription and no fetch. Handles re-key themselves when the
// identity changes.
//
// Fetches are shared: any number of handles on one key cause one call, and a
// key fetched inside its policy's dedup window is served from the cache.
//
// # Writing
//
// A MutationDef pairs a Plan with a Commit. Perform runs:
//
//  1. Validation of the request (ozzo-validation). Nothing is written on failure.
//  2. Applying: every Effect.Apply is written to the store as an optimistic value.
//  3. Committing: Commit calls the server.
//  4. Reconciled: every Effect.Reconcile rewrites its key with the server
//     response, but only while the key still holds this call's Apply write.
//     A key some fetch or other call wrote since is invalidated instead. Then
//     the keys of Plan.Invalidate resources that were not handled are
//     invalidated. If the identity changed during the commit nothing is
//     written, so purged keys stay purged.
//  5. RolledBack: each key this call wrote is restored to the entry it held
//     before the call, in reverse order. A key written again by someone else
//     since is refetched instead, so one call never undoes another call's
//     write. The classified error is returned once the store is consistent.
//
// Plans only see the cache through Scope, which lists the cached list keys of a
// resource so a plan can rewrite every snapshot that may contain a record.
//
// # Errors
//
// Every error returned by Perform is classified by the apierr package.
// Read errors are stored on the entry next to the last good value.
package resource
