// File: internal/infra/security/signature.go
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Signer computes and checks hex-encoded HMAC-SHA256 signatures.
// The gateway uses the same scheme for checkout callbacks (keyed with the
// API secret over "order|payment") and for webhooks (keyed with the
// webhook secret over the raw request body).
type Signer struct {
	key []byte
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("signing secret is empty")
	}
	return &Signer{key: []byte(secret)}, nil
}

// Sign returns hex(HMAC-SHA256(key, msg)).
func (s *Signer) Sign(msg []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time. Hex case is ignored.
func (s *Signer) Verify(msg []byte, signature string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(msg)
	return hmac.Equal(mac.Sum(nil), got)
}

// CheckoutPayload is the message signed for a checkout callback.
func CheckoutPayload(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}
