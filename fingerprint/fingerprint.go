// Package fingerprint computes the content fingerprint stored with every
// article and anchored to the ledger.
package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Size is the length of a hex-encoded fingerprint.
const Size = sha256.Size * 2

// Of returns the lowercase hex SHA-256 of the UTF-8 encoding of text.
func Of(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether fp is the fingerprint of text. Case is ignored in
// fp.
func Verify(text, fp string) bool {
	want := Of(text)
	got := strings.ToLower(fp)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// Valid reports whether s looks like a fingerprint.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
