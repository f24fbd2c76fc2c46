package hash

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest.
type Digest [32]byte

// sectionKey separates fragment section digests from any other use of
// BLAKE3 over the same bytes. Changing it invalidates every stored digest.
var sectionKey = [32]byte{
	'a', 'r', 'r', 'a', 'y', 's', 't', 'o', 'r', 'e', '.', 'f', 'r', 'a', 'g', 'm',
	'e', 'n', 't', '.', 's', 'e', 'c', 't', 'i', 'o', 'n', 0, 0, 0, 0, 0,
}

// Section returns the keyed digest of an uncompressed fragment section.
func Section(data []byte) Digest {
	h, err := blake3.NewKeyed(sectionKey[:])
	if err != nil {
		// Only a key of the wrong length fails.
		panic("hash: blake3 keyed init: " + err.Error())
	}
	_, _ = h.Write(data)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// String returns the lowercase hex form of d.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// ParseDigest parses the hex form produced by String.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("hash: parse digest: %w", err)
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("hash: digest has %d bytes, want %d", len(b), len(d))
	}
	copy(d[:], b)
	return d, nil
}
