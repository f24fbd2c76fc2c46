// Package hash provides the integrity checks of the fragment format.
//
// CRC32C (Castagnoli) protects the fragment metadata header; it is cheap and
// hardware accelerated on x86 and ARM:
//
//	sum := hash.CRC32C(header)
//
// Each attribute section carries a keyed BLAKE3 digest of its uncompressed
// bytes, recorded in hex in the metadata and verified after decompression:
//
//	d := hash.Section(data)
//	want, _ := hash.ParseDigest(meta.Digest)
//	ok := d == want
package hash
