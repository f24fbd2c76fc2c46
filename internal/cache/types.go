package cache

import "context"

// Key identifies one block of an immutable blob.
type Key struct {
	// Path is the blob name within its store.
	Path string
	// Block is the block index within the blob.
	Block int64
}

// BlockCache is a byte-oriented cache for blocks of immutable blobs.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a block. The cache retains b; the caller must not modify it.
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}
