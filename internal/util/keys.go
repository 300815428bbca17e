package util

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"slices"
)

// BulkKey returns the composite key for a set of request keys. Order of keys
// does not matter.
func BulkKey(prefix string, keys []string) string {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	return BulkKeySorted(prefix, sorted)
}

// BulkKeySorted is BulkKey for keys already sorted ascending. Each key is
// length-prefixed before hashing so that {"a,b"} and {"a","b"} differ.
func BulkKeySorted(prefix string, sorted []string) string {
	h := sha256.New()
	var n [4]byte
	for _, k := range sorted {
		binary.BigEndian.PutUint32(n[:], uint32(len(k)))
		h.Write(n[:])
		h.Write([]byte(k))
	}
	sum := h.Sum(nil)
	return prefix + ":" + hex.EncodeToString(sum[:8])
}
