package phonepe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"portfolio-payments/internal/models"
)

const (
	testSalt  = "0339049d-53a0-4d4b-97c2-2fb1cfa32ccc"
	testIndex = "1"
	testPath  = "/webhooks/phonepe"
)

func testVerifier() *SignatureVerifier {
	return NewSignatureVerifier(testSalt, testIndex, testPath)
}

func TestVerify_Base64BodyPathRecipe(t *testing.T) {
	body := []byte(`{"response":"eyJzdWNjZXNzIjp0cnVlfQ=="}`)
	encoded := base64.StdEncoding.EncodeToString(body)
	digest := sha256.Sum256([]byte(encoded + testPath + testSalt))
	xVerify := hex.EncodeToString(digest[:]) + "###" + testIndex

	recipe, err := testVerifier().Verify(body, xVerify)
	assert.NoError(t, err)
	assert.Equal(t, "sha256(base64Body+path+salt)", recipe)
}

func TestVerify_RawBodyRecipe(t *testing.T) {
	body := []byte(`{"code":"PAYMENT_SUCCESS"}`)
	digest := sha256.Sum256([]byte(string(body) + testSalt))
	xVerify := hex.EncodeToString(digest[:]) + "###" + testIndex

	recipe, err := testVerifier().Verify(body, xVerify)
	assert.NoError(t, err)
	assert.Equal(t, "sha256(rawBody+salt)", recipe)
}

func TestVerify_Base64BodyRecipe(t *testing.T) {
	body := []byte(`{"code":"PAYMENT_PENDING"}`)
	encoded := base64.StdEncoding.EncodeToString(body)
	digest := sha256.Sum256([]byte(encoded + testSalt))
	xVerify := hex.EncodeToString(digest[:]) + "###" + testIndex

	recipe, err := testVerifier().Verify(body, xVerify)
	assert.NoError(t, err)
	assert.Equal(t, "sha256(base64Body+salt)", recipe)
}

func TestVerify_HMACRecipe(t *testing.T) {
	body := []byte(`{"code":"PAYMENT_ERROR"}`)
	mac := hmac.New(sha256.New, []byte(testSalt))
	mac.Write(body)
	xVerify := hex.EncodeToString(mac.Sum(nil)) + "###" + testIndex

	recipe, err := testVerifier().Verify(body, xVerify)
	assert.NoError(t, err)
	assert.Equal(t, "hmac-sha256(salt,rawBody)", recipe)
}

func TestVerify_RawBodySaltIndexRecipe(t *testing.T) {
	body := []byte(`{"code":"PAYMENT_DECLINED"}`)
	digest := sha256.Sum256([]byte(string(body) + testSalt + testIndex))
	xVerify := hex.EncodeToString(digest[:]) + "###" + testIndex

	recipe, err := testVerifier().Verify(body, xVerify)
	assert.NoError(t, err)
	assert.Equal(t, "sha256(rawBody+salt+index)", recipe)
}

func TestVerify_HeaderIndexOverridesConfigured(t *testing.T) {
	body := []byte(`{"code":"PAYMENT_SUCCESS"}`)
	// Signed with salt index 2 while the verifier is configured with 1.
	digest := sha256.Sum256([]byte(string(body) + testSalt + "2"))
	xVerify := hex.EncodeToString(digest[:]) + "###2"

	recipe, err := testVerifier().Verify(body, xVerify)
	assert.NoError(t, err)
	assert.Equal(t, "sha256(rawBody+salt+index)", recipe)
}

func TestVerify_MissingIndexSuffix(t *testing.T) {
	body := []byte(`{"ok":true}`)
	digest := sha256.Sum256([]byte(string(body) + testSalt))
	xVerify := hex.EncodeToString(digest[:])

	recipe, err := testVerifier().Verify(body, xVerify)
	assert.NoError(t, err)
	assert.Equal(t, "sha256(rawBody+salt)", recipe)
}

func TestVerify_WrongSignature(t *testing.T) {
	body := []byte(`{"ok":true}`)

	_, err := testVerifier().Verify(body, "deadbeef###1")
	assert.ErrorIs(t, err, models.ErrSignatureInvalid)
}

func TestVerify_MissingHeader(t *testing.T) {
	_, err := testVerifier().Verify([]byte(`{}`), "")
	assert.ErrorIs(t, err, models.ErrSignatureInvalid)
}

func TestVerify_MissingSalt(t *testing.T) {
	v := NewSignatureVerifier("", "1", testPath)

	_, err := v.Verify([]byte(`{}`), "anything###1")
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestSign_RoundTrip(t *testing.T) {
	v := testVerifier()
	payload := base64.StdEncoding.EncodeToString([]byte(`{"merchantId":"M1"}`))

	signed := v.Sign(payload, "/pg/v1/pay")
	digest := sha256.Sum256([]byte(payload + "/pg/v1/pay" + testSalt))
	assert.Equal(t, hex.EncodeToString(digest[:])+"###1", signed)
}
