package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	payload := []byte(`{"event":"lead.created","data":{"id":"123"}}`)

	sig := Sign(payload, "secret-key")

	assert.True(t, strings.HasPrefix(sig, "sha256="))
	assert.Len(t, sig, len("sha256=")+64)

	// Same payload and secret always produce the same signature
	assert.Equal(t, sig, Sign(payload, "secret-key"))

	// Different secret produces a different signature
	assert.NotEqual(t, sig, Sign(payload, "other-key"))
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"event":"contact.created"}`)
	secret := "whsec_abc123"

	sig := Sign(payload, secret)

	assert.True(t, Verify(payload, secret, sig))
	assert.False(t, Verify(payload, "wrong-secret", sig))
	assert.False(t, Verify([]byte(`{"event":"tampered"}`), secret, sig))
}

func TestVerifyRejectsMalformedSignatures(t *testing.T) {
	payload := []byte(`{}`)
	secret := "secret"

	assert.False(t, Verify(payload, secret, ""))
	assert.False(t, Verify(payload, secret, "deadbeef"))
	assert.False(t, Verify(payload, secret, "md5=deadbeef"))
	assert.False(t, Verify(payload, secret, "sha256=not-hex"))
}
