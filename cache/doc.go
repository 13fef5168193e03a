// Package cache defines the keyed store shared by the read and write hooks of
// the library client, and the keys that address it.
//
// # Overview
//
// The package exports the Store interface, the Key type and its serializer,
// predicates over keys, and revalidation policies. The default Store lives in
// the memory subpackage:
//
//	store, err := memory.New(memory.DefaultConfig(), memory.WithLogger(logger))
//
// # Keys
//
// A Key is a resource name, arbitrary parameters and the identity (bearer
// token) the data belongs to:
//
//	key := cache.NewKey("book", token, int64(42))
//
// Two keys are equal when their canonical strings are equal, so parameters are
// compared by value: two distinct *BookSearch pointers with the same fields
// address the same entry. KeyFor returns NoKey when the identity is empty;
// callers treat NoKey as "do not fetch".
//
// # Key Serialization Strategy
//
// The default key serializer uses reflection to handle various Go types:
//
//   - Strings: quoted, so separators inside values cannot collide
//   - Pointers: dereferenced, nil renders as "nil"
//   - Slices/arrays: recursive serialization of elements
//   - Maps: sorted key-value pairs for deterministic output
//   - Structs: exported fields sorted by name
//   - Text marshalers (time.Time): their text form
//   - Function pointers: %p formatting, stable within a process only
//
// # Entries
//
// Every write replaces the stored value wholesale through an Updater, bumps a
// store-wide revision and notifies the key's subscribers synchronously. Writes
// to one key are serialized with their notifications. An Entry carries the
// last good value next to the last error, so a failed revalidation never
// drops data already shown.
//
// Rollback takes the revision returned by Mutate and only restores the
// previous entry when nothing wrote the key since; otherwise the caller
// invalidates it. Reconcile is the confirming counterpart: it rewrites a key
// only while it still holds the caller's write, and never brings back an
// entry that was purged in the meantime.
//
// # Fetching
//
// FetchFor shares one in-flight call per key. A key fetched successfully inside
// its policy's DedupingInterval is served from the cache, and so is a key that
// settled after the caller asked for it.
//
// Invalidate marks matching entries stale and refetches the ones somebody is
// subscribed to. Purge drops entries entirely; it is how a signed out identity
// loses every cached response.
package cache
