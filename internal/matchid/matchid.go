// Package matchid maps opaque match document ids to numeric ids for the
// on-chain prediction-market contracts, which address markets by uint64.
package matchid

import "hash/fnv"

// numericBits keeps derived ids inside the 53-bit safe-integer range so
// JavaScript consumers of the market API can hold them without loss.
const numericBits = 53

// Numeric derives a stable numeric id from a match document id using
// FNV-1a 64 truncated to 53 bits. The mapping is deterministic and
// collision-resistant for realistic id volumes but not collision-free;
// callers that require uniqueness must check for an existing market under
// the derived id before creating one.
func Numeric(documentID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(documentID))
	return h.Sum64() & ((1 << numericBits) - 1)
}
