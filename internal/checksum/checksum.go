// Package checksum fingerprints note content. The digest is stored on each
// cache row so content-identical rewrites can be told apart from real edits,
// which mtime comparison alone cannot do.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}
