package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HashAlgorithm selects the digest used to derive a content-addressed ID.
// SHA-256 is the interop default; blake2b is available for callers that
// prefer its throughput on large canonical payloads.
type HashAlgorithm int

const (
	SHA256 HashAlgorithm = iota
	BLAKE2b256
)

// Hash digests data with the selected algorithm and returns a hex string.
func Hash(algo HashAlgorithm, data []byte) string {
	switch algo {
	case BLAKE2b256:
		sum := blake2b.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}
