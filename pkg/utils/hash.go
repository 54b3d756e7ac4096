package utils

import (
	"crypto/sha1"
	"encoding/hex"
)

// PathKey derives a stable, markup-safe key from a filesystem path.
func PathKey(path string) string {
	sum := sha1.Sum([]byte(path))
	return hex.EncodeToString(sum[:8])
}
