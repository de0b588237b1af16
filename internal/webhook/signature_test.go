package webhook_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marketlane/settlement/internal/domain"
	"github.com/marketlane/settlement/internal/webhook"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"event":"payment.captured"}`)
	secret := "whsec_test"

	sig := webhook.Sign(payload, secret)
	assert.NoError(t, webhook.VerifySignature(payload, sig, secret))

	assert.ErrorIs(t, webhook.VerifySignature(payload, sig, "whsec_other"), domain.ErrInvalidSignature)
	assert.ErrorIs(t, webhook.VerifySignature([]byte(`tampered`), sig, secret), domain.ErrInvalidSignature)
	assert.ErrorIs(t, webhook.VerifySignature(payload, "", secret), domain.ErrInvalidSignature)
	assert.ErrorIs(t, webhook.VerifySignature(payload, "not-hex", secret), domain.ErrInvalidSignature)
}
