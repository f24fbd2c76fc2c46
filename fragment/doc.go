// Package fragment implements the dense Reader and Writer strategies of
// package query on top of a blobstore.
//
// A write stores its cells as one immutable fragment blob below
// <array>/__fragments/. A blob starts with a fixed header and a
// checksummed JSON metadata block describing the covered subarray and one
// section per attribute. Sections are split into blocks compressed with the
// attribute compressor and carry a BLAKE3 digest of their content.
//
// Reads consult every fragment intersecting the subarray. When fragments
// overlap, the newest one wins per cell:
//
//	w := fragment.NewWriter(store, "arrays/a")
//	q, _ := query.New(query.Write, s, query.WithWriter(w))
//	_ = q.SetBuffer("a1", []int32{1, 2, 3, 4})
//	_ = q.Init(ctx)
//	_ = q.Process(ctx)
//
// Only dense arrays over integer domains are supported.
package fragment
