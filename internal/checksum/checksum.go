// Package checksum computes the content digests used for optimistic concurrency.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag formats a digest as a strong entity tag.
func ETag(sum string) string {
	return `"` + sum + `"`
}

// Normalize strips the quotes and weak prefix an If-Match header may carry.
func Normalize(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "W/")
	return strings.Trim(tag, `"`)
}

// Matches reports whether an If-Match value allows writing over current.
// An empty value or "*" always matches.
func Matches(ifMatch, current string) bool {
	tag := Normalize(ifMatch)
	return tag == "" || tag == "*" || tag == current
}
