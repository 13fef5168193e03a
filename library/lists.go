package library

import (
	"slices"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/resource"
)

type identified interface {
	Identifier() int64
}

func replaceByID[T identified](items []T, id int64, next T) []T {
	out := slices.Clone(items)
	for i, it := range out {
		if it.Identifier() == id {
			out[i] = next
		}
	}
	return out
}

func editByID[T identified](items []T, id int64, fn func(T) T) []T {
	out := slices.Clone(items)
	for i, it := range out {
		if it.Identifier() == id {
			out[i] = fn(it)
		}
	}
	return out
}

func removeByID[T identified](items []T, id int64) []T {
	return slices.DeleteFunc(slices.Clone(items), func(it T) bool {
		return it.Identifier() == id
	})
}

func prepend[T any](items []T, item T) []T {
	return append([]T{item}, items...)
}

func containsID[T identified](items []T, id int64) bool {
	return slices.ContainsFunc(items, func(it T) bool { return it.Identifier() == id })
}

// editPage rewrites the content of a cached Page. Keys without a value, or
// holding something else, are left as they are.
func editPage[T any](fn func([]T) []T) cache.Updater {
	return func(cur any, ok bool) (any, bool) {
		page, isPage := cur.(Page[T])
		if !ok || !isPage {
			return cur, ok
		}
		before := len(page.Content)
		page.Content = fn(page.Content)
		page.TotalElements += int64(len(page.Content) - before)
		return page, true
	}
}

// editList rewrites a cached slice. Keys without a value are left as they are.
func editList[T any](fn func([]T) []T) cache.Updater {
	return func(cur any, ok bool) (any, bool) {
		items, isList := cur.([]T)
		if !ok || !isList {
			return cur, ok
		}
		return fn(items), true
	}
}

// editItem rewrites a cached single record.
func editItem[T any](fn func(T) T) cache.Updater {
	return func(cur any, ok bool) (any, bool) {
		item, isItem := cur.(T)
		if !ok || !isItem {
			return cur, ok
		}
		return fn(item), true
	}
}

func reconcilePage[T, Res any](fn func([]T, Res) []T) func(any, bool, Res) (any, bool) {
	return func(cur any, ok bool, res Res) (any, bool) {
		return editPage(func(items []T) []T { return fn(items, res) })(cur, ok)
	}
}

func reconcileList[T, Res any](fn func([]T, Res) []T) func(any, bool, Res) (any, bool) {
	return func(cur any, ok bool, res Res) (any, bool) {
		return editList(func(items []T) []T { return fn(items, res) })(cur, ok)
	}
}

// reconcileSet writes the server response as the new value.
func reconcileSet[Res any](_ any, _ bool, res Res) (any, bool) {
	return res, true
}

// reconcileKeep leaves the optimistic value in place once confirmed.
func reconcileKeep[Res any](cur any, ok bool, _ Res) (any, bool) {
	return cur, ok
}

// reconcileClear leaves the key without a value.
func reconcileClear[Res any](any, bool, Res) (any, bool) {
	return nil, false
}

// keysWhere lists the cached keys of name whose params satisfy match.
func keysWhere[P any](scope resource.Scope, name cache.Resource, match func(P) bool) []cache.Key {
	var out []cache.Key
	for _, k := range scope.KeysOf(name) {
		p, ok := k.Params.(P)
		if ok && match(p) {
			out = append(out, k)
		}
	}
	return out
}

// cached returns key when it is present in the store.
func cached(scope resource.Scope, key cache.Key) []cache.Key {
	if scope.Cached(key) {
		return []cache.Key{key}
	}
	return nil
}
