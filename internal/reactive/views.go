package reactive

import (
	gocache "github.com/patrickmn/go-cache"
)

// Views memoizes derived values per key until they are invalidated.
type Views[T any] struct {
	cache *gocache.Cache
}

// NewViews returns an empty view cache. Entries never expire on their own.
func NewViews[T any]() *Views[T] {
	return &Views[T]{cache: gocache.New(gocache.NoExpiration, 0)}
}

// Get returns the cached value for key, computing and storing it on a miss.
func (v *Views[T]) Get(key string, compute func() T) T {
	if cached, ok := v.cache.Get(key); ok {
		if val, ok := cached.(T); ok {
			return val
		}
	}
	val := compute()
	v.cache.Set(key, val, gocache.NoExpiration)
	return val
}

// Cached reports whether key currently holds a memoized value.
func (v *Views[T]) Cached(key string) bool {
	_, ok := v.cache.Get(key)
	return ok
}

// Invalidate drops the memoized values for keys.
func (v *Views[T]) Invalidate(keys ...string) {
	for _, k := range keys {
		v.cache.Delete(k)
	}
}

// Flush drops every memoized value.
func (v *Views[T]) Flush() {
	v.cache.Flush()
}
