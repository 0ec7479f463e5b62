package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashContent creates a SHA256 hash of a string.
// Used as cache key for compiled templates and as the content hash of rendered documents.
func HashContent(s string) string {
	h := sha256.New()
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}
