package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"portfolio-payments/internal/models"
	"portfolio-payments/internal/phonepe"
	"portfolio-payments/internal/razorpay"
	"portfolio-payments/internal/repository"
	"portfolio-payments/internal/services"
)

const (
	webhookSalt   = "test-salt-key"
	webhookSecret = "test-webhook-secret"
)

func newWebhookRouter(t *testing.T, env models.Environment) (*gin.Engine, repository.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryRepository()
	_, err := store.Create(context.Background(), &models.PaymentRecord{
		MerchantTransactionID: "TXN-H1",
		Gateway:               models.GatewayPhonePe,
		Status:                models.PaymentPending,
		AmountMinorUnits:      100000,
	})
	assert.NoError(t, err)

	verifier := phonepe.NewSignatureVerifier(webhookSalt, "1", "/webhooks/phonepe")
	rzClient := razorpay.NewClient("", "", webhookSecret)
	coordinator := services.NewNotificationCoordinator(store, services.NewDispatcher(nil, nil, nil, nil, nil, "+91"))
	webhookService := services.NewWebhookService(
		verifier, rzClient,
		services.NewReconciler(store), coordinator,
		repository.NewMemoryWebhookEventStore(), env,
	)
	handler := NewWebhookHandler(webhookService)

	router := gin.New()
	router.POST("/webhooks/phonepe", handler.HandlePhonePeWebhook)
	router.POST("/webhooks/razorpay", handler.HandleRazorpayWebhook)
	return router, store
}

func phonePeBody(merchantTxnID string) []byte {
	payload, _ := json.Marshal(map[string]interface{}{
		"success": true,
		"code":    "PAYMENT_SUCCESS",
		"data": map[string]interface{}{
			"merchantTransactionId": merchantTxnID,
			"transactionId":         "pp_h1",
			"state":                 "COMPLETED",
			"amount":                100000,
		},
	})
	body, _ := json.Marshal(map[string]string{"response": base64.StdEncoding.EncodeToString(payload)})
	return body
}

func signPhonePeBody(body []byte) string {
	digest := sha256.Sum256(append(append([]byte{}, body...), []byte(webhookSalt)...))
	return hex.EncodeToString(digest[:]) + "###1"
}

func TestPhonePeWebhook_ValidSignature(t *testing.T) {
	router, store := newWebhookRouter(t, models.EnvProduction)
	body := phonePeBody("TXN-H1")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/phonepe", bytes.NewReader(body))
	req.Header.Set("X-VERIFY", signPhonePeBody(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	record, _ := store.Get(context.Background(), "TXN-H1")
	assert.Equal(t, models.PaymentCompleted, record.Status)
}

func TestPhonePeWebhook_BadSignatureProductionRejected(t *testing.T) {
	router, store := newWebhookRouter(t, models.EnvProduction)
	body := phonePeBody("TXN-H1")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/phonepe", bytes.NewReader(body))
	req.Header.Set("X-VERIFY", "deadbeef###1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	record, _ := store.Get(context.Background(), "TXN-H1")
	assert.Equal(t, models.PaymentPending, record.Status)
}

func TestPhonePeWebhook_BadSignatureSandboxAccepted(t *testing.T) {
	router, store := newWebhookRouter(t, models.EnvSandbox)
	body := phonePeBody("TXN-H1")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/phonepe", bytes.NewReader(body))
	req.Header.Set("X-VERIFY", "deadbeef###1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	record, _ := store.Get(context.Background(), "TXN-H1")
	assert.Equal(t, models.PaymentCompleted, record.Status)
}

func TestPhonePeWebhook_UnknownTransactionStillAcks(t *testing.T) {
	router, _ := newWebhookRouter(t, models.EnvSandbox)
	body := phonePeBody("TXN-UNKNOWN")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/phonepe", bytes.NewReader(body))
	req.Header.Set("X-VERIFY", signPhonePeBody(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func razorpayBody(merchantTxnID string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"event": "payment.captured",
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":       "pay_h1",
					"order_id": "order_h1",
					"status":   "captured",
					"method":   "upi",
					"amount":   100000,
					"notes":    map[string]interface{}{"merchantTransactionId": merchantTxnID},
				},
			},
		},
	})
	return body
}

func signRazorpayBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRazorpayWebhook_ValidSignature(t *testing.T) {
	router, store := newWebhookRouter(t, models.EnvProduction)
	body := razorpayBody("TXN-H1")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", bytes.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", signRazorpayBody(body))
	req.Header.Set("X-Razorpay-Event-Id", "evt_h1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	record, _ := store.Get(context.Background(), "TXN-H1")
	assert.Equal(t, models.PaymentCompleted, record.Status)
	assert.Equal(t, "pay_h1", record.ProviderTransactionID)
}

func TestRazorpayWebhook_BadSignatureProductionRejected(t *testing.T) {
	router, _ := newWebhookRouter(t, models.EnvProduction)
	body := razorpayBody("TXN-H1")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", bytes.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", "forged")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
