// Package cas computes the content digests used to address and verify unit
// payloads. Every digest pairs a SHA-256 with a BLAKE3 of the same bytes.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/zeebo/blake3"
)

// sha256Pattern matches a lowercase 64 character hex digest.
var sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// HashResult holds both digests of one payload.
type HashResult struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// Sum computes both digests of data.
func Sum(data []byte) HashResult {
	return HashResult{SHA256: Hash(data), BLAKE3: Blake3Hash(data)}
}

// Hash computes the SHA-256 hash of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Blake3Hash computes the BLAKE3-256 hash of data.
func Blake3Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// IsValidHash reports whether s has the shape of a hex 256-bit digest.
func IsValidHash(s string) bool {
	return sha256Pattern.MatchString(s)
}

// Verify checks data against want. An empty digest in want is not checked.
func Verify(data []byte, want HashResult) error {
	if want.SHA256 != "" {
		if got := Hash(data); got != want.SHA256 {
			return fmt.Errorf("sha256 mismatch: got %s, want %s", got, want.SHA256)
		}
	}
	if want.BLAKE3 != "" {
		if got := Blake3Hash(data); got != want.BLAKE3 {
			return fmt.Errorf("blake3 mismatch: got %s, want %s", got, want.BLAKE3)
		}
	}
	return nil
}
