package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"portfolio-payments/internal/models"
	"portfolio-payments/internal/repository"
)

type MockPhonePeVerifier struct {
	mock.Mock
}

var _ PhonePeVerifier = (*MockPhonePeVerifier)(nil)

func (m *MockPhonePeVerifier) Verify(rawBody []byte, xVerify string) (string, error) {
	args := m.Called(rawBody, xVerify)
	return args.String(0), args.Error(1)
}

type MockRazorpayWebhookVerifier struct {
	mock.Mock
}

var _ RazorpayWebhookVerifier = (*MockRazorpayWebhookVerifier)(nil)

func (m *MockRazorpayWebhookVerifier) VerifyWebhookSignature(rawBody []byte, signature string) error {
	return m.Called(rawBody, signature).Error(0)
}

type webhookFixture struct {
	service *WebhookService
	store   repository.Store
	phonepe *MockPhonePeVerifier
	razor   *MockRazorpayWebhookVerifier
}

func newWebhookFixture(t *testing.T, env models.Environment) *webhookFixture {
	store := repository.NewMemoryRepository()
	_, err := store.Create(context.Background(), &models.PaymentRecord{
		MerchantTransactionID: "TXN-W1",
		Gateway:               models.GatewayPhonePe,
		Status:                models.PaymentPending,
		AmountMinorUnits:      100000,
	})
	assert.NoError(t, err)

	phonepeVerifier := new(MockPhonePeVerifier)
	razorVerifier := new(MockRazorpayWebhookVerifier)
	coordinator := NewNotificationCoordinator(store, NewDispatcher(nil, nil, nil, nil, nil, "+91"))
	service := NewWebhookService(
		phonepeVerifier, razorVerifier,
		NewReconciler(store), coordinator,
		repository.NewMemoryWebhookEventStore(), env,
	)
	return &webhookFixture{service: service, store: store, phonepe: phonepeVerifier, razor: razorVerifier}
}

func phonePeSuccessBody(merchantTxnID string) []byte {
	payload := map[string]interface{}{
		"success": true,
		"code":    "PAYMENT_SUCCESS",
		"data": map[string]interface{}{
			"merchantTransactionId": merchantTxnID,
			"transactionId":         "pp_" + merchantTxnID,
			"state":                 "COMPLETED",
			"amount":                100000,
			"paymentInstrument":     map[string]interface{}{"type": "UPI"},
		},
	}
	raw, _ := json.Marshal(payload)
	body, _ := json.Marshal(map[string]string{"response": base64.StdEncoding.EncodeToString(raw)})
	return body
}

func TestProcessPhonePeWebhook_Success(t *testing.T) {
	f := newWebhookFixture(t, models.EnvProduction)
	body := phonePeSuccessBody("TXN-W1")
	f.phonepe.On("Verify", body, "good-sig").Return("sha256(rawBody+salt)", nil)

	err := f.service.ProcessPhonePeWebhook(context.Background(), body, "good-sig")
	assert.NoError(t, err)

	record, err := f.store.Get(context.Background(), "TXN-W1")
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, record.Status)
	assert.Equal(t, "pp_TXN-W1", record.ProviderTransactionID)
	assert.Equal(t, "UPI", record.PaymentMode)
	assert.True(t, record.NotificationsSent)
}

func TestProcessPhonePeWebhook_BadSignatureProduction(t *testing.T) {
	f := newWebhookFixture(t, models.EnvProduction)
	body := phonePeSuccessBody("TXN-W1")
	f.phonepe.On("Verify", body, "bad-sig").
		Return("", fmt.Errorf("%w: no recipe matched", models.ErrSignatureInvalid))

	err := f.service.ProcessPhonePeWebhook(context.Background(), body, "bad-sig")
	assert.ErrorIs(t, err, models.ErrSignatureInvalid)

	record, _ := f.store.Get(context.Background(), "TXN-W1")
	assert.Equal(t, models.PaymentPending, record.Status)
}

func TestProcessPhonePeWebhook_BadSignatureSandboxContinues(t *testing.T) {
	f := newWebhookFixture(t, models.EnvSandbox)
	body := phonePeSuccessBody("TXN-W1")
	f.phonepe.On("Verify", body, "bad-sig").
		Return("", fmt.Errorf("%w: no recipe matched", models.ErrSignatureInvalid))

	err := f.service.ProcessPhonePeWebhook(context.Background(), body, "bad-sig")
	assert.NoError(t, err)

	record, _ := f.store.Get(context.Background(), "TXN-W1")
	assert.Equal(t, models.PaymentCompleted, record.Status)
}

func TestProcessPhonePeWebhook_DuplicateSuppressed(t *testing.T) {
	f := newWebhookFixture(t, models.EnvSandbox)
	body := phonePeSuccessBody("TXN-W1")
	f.phonepe.On("Verify", body, "sig").Return("sha256(rawBody+salt)", nil)

	assert.NoError(t, f.service.ProcessPhonePeWebhook(context.Background(), body, "sig"))
	// Redelivery of the same code for the same transaction is a no-op.
	assert.NoError(t, f.service.ProcessPhonePeWebhook(context.Background(), body, "sig"))

	f.phonepe.AssertNumberOfCalls(t, "Verify", 2)
}

func TestProcessPhonePeWebhook_MalformedBody(t *testing.T) {
	f := newWebhookFixture(t, models.EnvSandbox)
	f.phonepe.On("Verify", mock.Anything, mock.Anything).Return("", errors.New("skip"))

	err := f.service.ProcessPhonePeWebhook(context.Background(), []byte("not json"), "sig")
	assert.ErrorIs(t, err, models.ErrValidation)

	err = f.service.ProcessPhonePeWebhook(context.Background(), []byte(`{"response":"!!!not-base64!!!"}`), "sig")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func razorpayCapturedBody(merchantTxnID string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"event": "payment.captured",
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":       "pay_123",
					"order_id": "order_123",
					"status":   "captured",
					"method":   "card",
					"amount":   100000,
					"notes":    map[string]interface{}{"merchantTransactionId": merchantTxnID},
				},
			},
		},
	})
	return body
}

func TestProcessRazorpayWebhook_Captured(t *testing.T) {
	f := newWebhookFixture(t, models.EnvProduction)
	body := razorpayCapturedBody("TXN-W1")
	f.razor.On("VerifyWebhookSignature", body, "good-sig").Return(nil)

	err := f.service.ProcessRazorpayWebhook(context.Background(), body, "good-sig", "evt_1")
	assert.NoError(t, err)

	record, _ := f.store.Get(context.Background(), "TXN-W1")
	assert.Equal(t, models.PaymentCompleted, record.Status)
	assert.Equal(t, "pay_123", record.ProviderTransactionID)
	assert.True(t, record.NotificationsSent)
}

func TestProcessRazorpayWebhook_FailedAttemptKeepsOrderPending(t *testing.T) {
	f := newWebhookFixture(t, models.EnvProduction)
	body, _ := json.Marshal(map[string]interface{}{
		"event": "payment.failed",
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":         "pay_456",
					"order_id":   "order_123",
					"status":     "failed",
					"method":     "card",
					"error_code": "BAD_REQUEST_ERROR",
					"notes":      map[string]interface{}{"merchantTransactionId": "TXN-W1"},
				},
			},
		},
	})
	f.razor.On("VerifyWebhookSignature", mock.Anything, mock.Anything).Return(nil)

	err := f.service.ProcessRazorpayWebhook(context.Background(), body, "sig", "evt_2")
	assert.NoError(t, err)

	record, _ := f.store.Get(context.Background(), "TXN-W1")
	assert.Equal(t, models.PaymentPending, record.Status)
	assert.False(t, record.NotificationsSent)
}

func TestProcessRazorpayWebhook_BadSignatureProduction(t *testing.T) {
	f := newWebhookFixture(t, models.EnvProduction)
	body := razorpayCapturedBody("TXN-W1")
	f.razor.On("VerifyWebhookSignature", body, "bad").
		Return(fmt.Errorf("%w: mismatch", models.ErrSignatureInvalid))

	err := f.service.ProcessRazorpayWebhook(context.Background(), body, "bad", "evt_3")
	assert.ErrorIs(t, err, models.ErrSignatureInvalid)
}

func TestProcessRazorpayWebhook_UnhandledEventIgnored(t *testing.T) {
	f := newWebhookFixture(t, models.EnvProduction)
	body, _ := json.Marshal(map[string]interface{}{"event": "refund.processed"})
	f.razor.On("VerifyWebhookSignature", mock.Anything, mock.Anything).Return(nil)

	err := f.service.ProcessRazorpayWebhook(context.Background(), body, "sig", "evt_4")
	assert.NoError(t, err)
}

func TestProcessRazorpayWebhook_DuplicateEventID(t *testing.T) {
	f := newWebhookFixture(t, models.EnvProduction)
	body := razorpayCapturedBody("TXN-W1")
	f.razor.On("VerifyWebhookSignature", mock.Anything, mock.Anything).Return(nil)

	assert.NoError(t, f.service.ProcessRazorpayWebhook(context.Background(), body, "sig", "evt_5"))
	assert.NoError(t, f.service.ProcessRazorpayWebhook(context.Background(), body, "sig", "evt_5"))
}

func TestProcessRazorpayWebhook_StickySuccessAfterLateFailure(t *testing.T) {
	f := newWebhookFixture(t, models.EnvProduction)
	f.razor.On("VerifyWebhookSignature", mock.Anything, mock.Anything).Return(nil)

	captured := razorpayCapturedBody("TXN-W1")
	assert.NoError(t, f.service.ProcessRazorpayWebhook(context.Background(), captured, "sig", "evt_6"))

	failed, _ := json.Marshal(map[string]interface{}{
		"event": "payment.failed",
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":     "pay_789",
					"status": "failed",
					"notes":  map[string]interface{}{"merchantTransactionId": "TXN-W1"},
				},
			},
		},
	})
	assert.NoError(t, f.service.ProcessRazorpayWebhook(context.Background(), failed, "sig", "evt_7"))

	record, _ := f.store.Get(context.Background(), "TXN-W1")
	assert.Equal(t, models.PaymentCompleted, record.Status)
	// The failed attempt must not overwrite the successful reference.
	assert.Equal(t, "pay_123", record.ProviderTransactionID)
}
