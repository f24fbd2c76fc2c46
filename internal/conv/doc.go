// Package conv provides checked integer conversions and arithmetic.
//
// Fragment headers, cell counts and byte offsets are untrusted once they have
// been read from a blob store; every narrowing conversion or product derived
// from them goes through this package.
//
// Loop indices and counts bounded by an in-memory slice use plain casts.
package conv
