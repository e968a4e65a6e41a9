package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// APIKeyMatches reports whether the presented key equals the configured one.
// Both sides are digested first so the comparison time does not depend on
// the key length. An empty configured key never matches.
func APIKeyMatches(configured, presented string) bool {
	configured = strings.TrimSpace(configured)
	presented = strings.TrimSpace(presented)
	if configured == "" || presented == "" {
		return false
	}
	want := sha256.Sum256([]byte(configured))
	got := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

// GenerateRandomString returns a hex-encoded random string of the given length.
func GenerateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", fmt.Errorf("generate random string: %w", err)
	}
	return hex.EncodeToString(bytes)[:length], nil
}
