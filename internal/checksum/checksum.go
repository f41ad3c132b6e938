// Package checksum computes content digests used as file ETags.
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

// Matches reports whether an If-Match value accepts data. It takes a bare
// digest, a quoted or weak ETag, a comma-separated list of them, or "*".
func Matches(ifMatch string, data []byte) bool {
	sum := Sum(data)
	for _, tag := range strings.Split(ifMatch, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" {
			return true
		}
		tag = strings.Trim(strings.TrimPrefix(tag, "W/"), `"`)
		if tag == sum {
			return true
		}
	}
	return false
}
