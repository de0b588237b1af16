package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/marketlane/settlement/internal/domain"
)

// VerifySignature checks the hex-encoded HMAC-SHA256 of the raw payload
// against the signature header the gateway sent.
func VerifySignature(payload []byte, signature, secret string) error {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("VerifySignature: %w", domain.ErrInvalidSignature)
	}
	return nil
}

// Sign computes the signature the gateway would attach to payload. Used by
// the mock gateway and tests.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
