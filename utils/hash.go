package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the hex-encoded sha256 of the given text. Chunk
// deduplication keys on this hash, so it must be collision-resistant.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
