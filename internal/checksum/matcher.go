package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex sha-256 fingerprint of a statement file's contents.
// Stored on the import batch so a re-upload of an identical file can be
// traced back to its earlier batch when reconciling import history.
func Sum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Matcher compares incoming statement payloads against a known fingerprint.
type Matcher struct {
	expected string
}

func NewMatcher(expected string) *Matcher {
	return &Matcher{expected: expected}
}

func (m *Matcher) Match(data []byte) bool {
	if m.expected == "" {
		return false
	}
	return Sum(data) == m.expected
}
