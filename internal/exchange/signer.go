package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Signer produces KuCoin API v2 request signatures.
//
// Signing rules:
//  1. prehash = timestamp + method + endpoint + body
//  2. signature = base64(HMAC-SHA256(secret, prehash))
//  3. the passphrase header is itself HMAC-signed under key version 2
type Signer struct {
	apiKey     string
	apiSecret  string
	passphrase string
}

func NewSigner(apiKey, apiSecret, passphrase string) *Signer {
	return &Signer{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		passphrase: passphrase,
	}
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(s.apiSecret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Headers returns the authentication headers for one request. endpoint must
// include the query string when present.
func (s *Signer) Headers(method, endpoint, body string) map[string]string {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return map[string]string{
		"KC-API-KEY":         s.apiKey,
		"KC-API-SIGN":        s.sign(timestamp + method + endpoint + body),
		"KC-API-TIMESTAMP":   timestamp,
		"KC-API-PASSPHRASE":  s.sign(s.passphrase),
		"KC-API-KEY-VERSION": "2",
	}
}
