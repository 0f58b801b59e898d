// Package signature implements HMAC-SHA256 signing of webhook payloads.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix identifies the signature scheme in the header value
const Prefix = "sha256="

// Sign computes the signature for payload using secret. The result is the
// hex digest prefixed with the scheme, e.g. "sha256=ab12...".
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return Prefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether provided is a valid signature for payload under
// secret. Comparison is constant time.
func Verify(payload []byte, secret, provided string) bool {
	if !strings.HasPrefix(provided, Prefix) {
		return false
	}
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(provided))
}
