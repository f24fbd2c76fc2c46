// Package cache holds blocks of immutable blobs in memory.
//
// Fragments never change once written, so blocks read from a remote blob
// store can be cached by blob name and block index without invalidation on
// the read path. The LRU reserves the bytes it holds from a
// resource.Controller so cached blocks and loaded fragments share one
// memory budget.
package cache
