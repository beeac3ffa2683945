package migration

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeChecksum returns the SHA-256 hex digest of the given bytes.
// No whitespace or line-ending normalisation is applied.
func ComputeChecksum(content []byte) string {
	h := sha256.Sum256(content)

	return hex.EncodeToString(h[:])
}
