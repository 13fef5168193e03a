package cache

import (
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Resource names a family of cached queries, e.g. "books" or "book".
type Resource string

// Key identifies one cached query: the resource, its parameters and the
// identity (bearer token) the data was fetched for.
type Key struct {
	Resource Resource
	Params   any
	Identity string
}

var defaultSerializer = NewDefaultKeySerializer()

// NewKey builds a Key. Prefer KeyFor when the identity may be missing.
func NewKey(resource Resource, identity string, params any) Key {
	return Key{Resource: resource, Params: params, Identity: identity}
}

// String returns the canonical form of the key. Two keys are equal iff their
// canonical forms are equal.
func (k Key) String() string {
	return defaultSerializer.SerializeKey(string(k.Resource), k.Params) +
		KeySeparator + strconv.Quote(k.Identity)
}

// Equal reports whether both keys address the same cache entry.
func (k Key) Equal(other Key) bool {
	return k.String() == other.String()
}

// Hash returns a 64 bit hash of the canonical form.
func (k Key) Hash() uint64 {
	return xxhash.Sum64String(k.String())
}

// Redacted renders the key with the identity replaced by a fingerprint, for logs.
func (k Key) Redacted() string {
	return defaultSerializer.SerializeKey(string(k.Resource), k.Params) +
		KeySeparator + Fingerprint(k.Identity)
}

// Fingerprint returns a short non-reversible tag for an identity.
func Fingerprint(identity string) string {
	if identity == "" {
		return "anonymous"
	}
	return "id:" + strconv.FormatUint(xxhash.Sum64String(identity), 16)
}

// OptionalKey is either a Key or nothing. A missing key means "do not fetch".
type OptionalKey struct {
	key Key
	ok  bool
}

// NoKey is the empty OptionalKey.
var NoKey = OptionalKey{}

// Some wraps a key.
func Some(k Key) OptionalKey {
	return OptionalKey{key: k, ok: true}
}

// Get returns the key and whether it is present.
func (o OptionalKey) Get() (Key, bool) {
	return o.key, o.ok
}

// IsNone reports whether no key is present.
func (o OptionalKey) IsNone() bool {
	return !o.ok
}

func (o OptionalKey) String() string {
	if !o.ok {
		return "none"
	}
	return o.key.Redacted()
}

// KeyFor derives the key for a resource query. An empty identity yields NoKey.
func KeyFor(resource Resource, identity string, params any) OptionalKey {
	if identity == "" {
		return NoKey
	}
	return Some(NewKey(resource, identity, params))
}

// Predicate selects cache keys.
type Predicate func(Key) bool

// ForIdentity matches every key fetched for identity.
func ForIdentity(identity string) Predicate {
	return func(k Key) bool {
		return k.Identity == identity
	}
}

// ForResource matches every key of the named resources fetched for identity.
// It is the one predicate used for broad invalidation after writes.
func ForResource(identity string, names ...Resource) Predicate {
	return func(k Key) bool {
		return k.Identity == identity && slices.Contains(names, k.Resource)
	}
}

// Exact matches a single key.
func Exact(key Key) Predicate {
	id := key.String()
	return func(k Key) bool {
		return k.String() == id
	}
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return func(k Key) bool {
		return !p(k)
	}
}

// And matches keys accepted by every predicate.
func And(ps ...Predicate) Predicate {
	return func(k Key) bool {
		for _, p := range ps {
			if !p(k) {
				return false
			}
		}
		return true
	}
}
