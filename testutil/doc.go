// Package testutil provides schema fixtures and seeded random helpers for tests.
//
// This package is intended for use in tests only.
//
//	s := testutil.DenseSchema()     // INT64 d1 [0,99] extent 5, INT32 a1
//	rng := testutil.NewRNG(4711)
//	lo, hi := rng.Range(0, 99)      // random valid subarray
package testutil
