package fingerprint

import (
	"fmt"
	"hash/fnv"
)

// Hash64 returns the 64-bit FNV-1a fingerprint of s.
// It is a fast, stable, non-cryptographic content fingerprint used for
// change detection and debug tracing. Collisions are tolerable; this is
// never a security boundary.
func Hash64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// Hex returns the fingerprint of s as a fixed-width lowercase hex string.
func Hex(s string) string {
	return fmt.Sprintf("%016x", Hash64(s))
}
