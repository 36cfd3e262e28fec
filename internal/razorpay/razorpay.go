package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	razorpaysdk "github.com/razorpay/razorpay-go"
	"github.com/sirupsen/logrus"

	"portfolio-payments/internal/models"
)

// Client wraps the Razorpay SDK with the status normalization and signature
// checks the rest of the service needs.
type Client struct {
	api           *razorpaysdk.Client
	keyID         string
	keySecret     string
	webhookSecret string
	logger        *logrus.Entry
}

// NewClient creates a Razorpay client. keyID and keySecret may be empty,
// leaving the client unconfigured.
func NewClient(keyID, keySecret, webhookSecret string) *Client {
	var api *razorpaysdk.Client
	if keyID != "" && keySecret != "" {
		api = razorpaysdk.NewClient(keyID, keySecret)
	}
	return &Client{
		api:           api,
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		logger:        logrus.WithField("component", "razorpay-client"),
	}
}

// Configured reports whether API credentials are present.
func (c *Client) Configured() bool {
	return c.api != nil
}

// KeyID exposes the public key for frontend checkout initialization.
func (c *Client) KeyID() string {
	return c.keyID
}

// CreateOrder creates a Razorpay order for the given amount and returns the
// order ID. The merchant transaction ID travels as the order receipt.
func (c *Client) CreateOrder(ctx context.Context, merchantTransactionID string, amountMinorUnits int64, currency string, notes map[string]interface{}) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("%w: Razorpay key id or secret missing", models.ErrConfiguration)
	}

	data := map[string]interface{}{
		"amount":   amountMinorUnits,
		"currency": currency,
		"receipt":  merchantTransactionID,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	order, err := c.api.Order.Create(data, nil)
	if err != nil {
		if isAuthError(err) {
			return "", fmt.Errorf("%w: %v", models.ErrProviderAuth, err)
		}
		return "", fmt.Errorf("failed to create razorpay order: %w", err)
	}

	orderID, _ := order["id"].(string)
	if orderID == "" {
		return "", fmt.Errorf("razorpay order response missing id")
	}
	return orderID, nil
}

// QueryStatus fetches the order and its payments and normalizes them. The
// orderID is the Razorpay order created for the merchant transaction.
func (c *Client) QueryStatus(ctx context.Context, merchantTransactionID, orderID string) (*models.ProviderStatus, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: Razorpay key id or secret missing", models.ErrConfiguration)
	}
	if orderID == "" {
		return nil, fmt.Errorf("%w: no razorpay order recorded", models.ErrTransactionNotFound)
	}

	order, err := c.api.Order.Fetch(orderID, nil, nil)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: order %s", models.ErrTransactionNotFound, orderID)
		}
		if isAuthError(err) {
			return nil, fmt.Errorf("%w: %v", models.ErrProviderAuth, err)
		}
		return nil, fmt.Errorf("failed to fetch razorpay order: %w", err)
	}

	status := &models.ProviderStatus{
		Gateway:               models.GatewayRazorpay,
		MerchantTransactionID: merchantTransactionID,
		OrderTransactionID:    orderID,
		OrderState:            mapOrderState(stringField(order, "status")),
	}
	if amount, ok := order["amount"].(float64); ok {
		status.AmountMinorUnits = int64(amount)
	}

	payments, err := c.api.Order.Payments(orderID, nil, nil)
	if err != nil {
		// The order state alone is still usable for reconciliation.
		c.logger.WithError(err).WithField("order_id", orderID).Warn("Failed to list order payments")
		return status, nil
	}

	items, _ := payments["items"].([]interface{})
	for _, item := range items {
		payment, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		attempt := models.PaymentAttempt{
			ProviderTransactionID: stringField(payment, "id"),
			State:                 mapPaymentState(stringField(payment, "status")),
			Mode:                  stringField(payment, "method"),
			ErrorCode:             stringField(payment, "error_code"),
		}
		if created, ok := payment["created_at"].(float64); ok {
			attempt.Timestamp = int64(created)
		}
		status.Attempts = append(status.Attempts, attempt)
	}
	return status, nil
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header against the
// raw webhook body.
func (c *Client) VerifyWebhookSignature(rawBody []byte, signature string) error {
	if c.webhookSecret == "" {
		return fmt.Errorf("%w: RAZORPAY_WEBHOOK_SECRET is not set", models.ErrConfiguration)
	}
	if signature == "" {
		return fmt.Errorf("%w: X-Razorpay-Signature header missing", models.ErrSignatureInvalid)
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("%w: razorpay webhook signature mismatch", models.ErrSignatureInvalid)
	}
	return nil
}

// VerifyPaymentSignature checks the checkout callback signature computed
// over "orderID|paymentID" with the key secret.
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) error {
	if c.keySecret == "" {
		return fmt.Errorf("%w: RAZORPAY_KEY_SECRET is not set", models.ErrConfiguration)
	}
	if signature == "" {
		return fmt.Errorf("%w: razorpay_signature missing", models.ErrSignatureInvalid)
	}

	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("%w: razorpay payment signature mismatch", models.ErrSignatureInvalid)
	}
	return nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// mapOrderState maps Razorpay order status (created/attempted/paid).
func mapOrderState(status string) models.ProviderState {
	switch status {
	case "paid":
		return models.StateCompleted
	case "created", "attempted":
		return models.StatePending
	default:
		return models.StateFailed
	}
}

// mapPaymentState maps Razorpay payment status
// (created/authorized/captured/refunded/failed).
func mapPaymentState(status string) models.ProviderState {
	switch status {
	case "captured", "refunded":
		return models.StateCompleted
	case "created", "authorized":
		return models.StatePending
	default:
		return models.StateFailed
	}
}

func isNotFoundError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found")
}

func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "authentication") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "api key")
}
