package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"portfolio-payments/internal/models"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	client := NewClient("key", "secret", "whsec")
	body := []byte(`{"event":"payment.captured"}`)

	assert.NoError(t, client.VerifyWebhookSignature(body, sign("whsec", body)))

	err := client.VerifyWebhookSignature(body, "forged")
	assert.ErrorIs(t, err, models.ErrSignatureInvalid)

	err = client.VerifyWebhookSignature(body, "")
	assert.ErrorIs(t, err, models.ErrSignatureInvalid)

	unconfigured := NewClient("key", "secret", "")
	err = unconfigured.VerifyWebhookSignature(body, "anything")
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestVerifyPaymentSignature(t *testing.T) {
	client := NewClient("key", "secret", "whsec")
	valid := sign("secret", []byte("order_1|pay_1"))

	assert.NoError(t, client.VerifyPaymentSignature("order_1", "pay_1", valid))

	err := client.VerifyPaymentSignature("order_1", "pay_2", valid)
	assert.ErrorIs(t, err, models.ErrSignatureInvalid)

	err = client.VerifyPaymentSignature("order_1", "pay_1", "")
	assert.ErrorIs(t, err, models.ErrSignatureInvalid)
}

func TestConfigured(t *testing.T) {
	assert.True(t, NewClient("key", "secret", "").Configured())
	assert.False(t, NewClient("", "", "whsec").Configured())
}

func TestMapOrderState(t *testing.T) {
	assert.Equal(t, models.StateCompleted, mapOrderState("paid"))
	assert.Equal(t, models.StatePending, mapOrderState("created"))
	assert.Equal(t, models.StatePending, mapOrderState("attempted"))
	assert.Equal(t, models.StateFailed, mapOrderState("expired"))
}

func TestMapPaymentState(t *testing.T) {
	assert.Equal(t, models.StateCompleted, mapPaymentState("captured"))
	assert.Equal(t, models.StateCompleted, mapPaymentState("refunded"))
	assert.Equal(t, models.StatePending, mapPaymentState("authorized"))
	assert.Equal(t, models.StatePending, mapPaymentState("created"))
	assert.Equal(t, models.StateFailed, mapPaymentState("failed"))
}
