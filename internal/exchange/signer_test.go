package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func hmacB64(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSigner_Headers(t *testing.T) {
	s := NewSigner("key-1", "secret-1", "phrase-1")
	headers := s.Headers("POST", "/api/v1/orders", `{"side":"buy"}`)

	assert.Equal(t, "key-1", headers["KC-API-KEY"])
	assert.Equal(t, "2", headers["KC-API-KEY-VERSION"])
	assert.NotEmpty(t, headers["KC-API-TIMESTAMP"])

	// The passphrase is sent signed, never in the clear.
	assert.Equal(t, hmacB64("secret-1", "phrase-1"), headers["KC-API-PASSPHRASE"])
	assert.NotEqual(t, "phrase-1", headers["KC-API-PASSPHRASE"])

	// The signature covers timestamp, method, endpoint and body.
	expected := hmacB64("secret-1", headers["KC-API-TIMESTAMP"]+"POST"+"/api/v1/orders"+`{"side":"buy"}`)
	assert.Equal(t, expected, headers["KC-API-SIGN"])
}

func TestSigner_BodyChangesSignature(t *testing.T) {
	s := NewSigner("key-1", "secret-1", "phrase-1")

	a := s.Headers("POST", "/api/v1/orders", `{"size":"1"}`)
	b := s.Headers("POST", "/api/v1/orders", `{"size":"2"}`)
	if a["KC-API-TIMESTAMP"] == b["KC-API-TIMESTAMP"] {
		assert.NotEqual(t, a["KC-API-SIGN"], b["KC-API-SIGN"])
	}
}
