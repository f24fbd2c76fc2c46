package arraystore

import "github.com/hupe1980/arraystore/internal/cache"

// Close releases resources held by this Array.
//
// With WithBlockCache, the cached blocks are dropped and their memory
// returned to the resource controller. Queries created from the array stay
// usable but read uncached.
func (a *Array) Close() error {
	if a == nil {
		return nil
	}
	if a.cache != nil {
		a.cache.Invalidate(func(cache.Key) bool { return true })
	}
	return nil
}
