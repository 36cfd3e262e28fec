package phonepe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"portfolio-payments/internal/models"
)

const (
	sandboxBaseURL    = "https://api-preprod.phonepe.com/apis/pg-sandbox"
	productionBaseURL = "https://api.phonepe.com/apis/hermes"

	payPath        = "/pg/v1/pay"
	statusPathBase = "/pg/v1/status"
)

// Client is a PhonePe Standard Checkout API client.
type Client struct {
	merchantID string
	baseURL    string
	verifier   *SignatureVerifier
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewClient creates a PhonePe client. When baseURL is empty the environment
// selects the preprod or hermes host.
func NewClient(merchantID string, verifier *SignatureVerifier, environment models.Environment, baseURL string) *Client {
	if baseURL == "" {
		if environment == models.EnvProduction {
			baseURL = productionBaseURL
		} else {
			baseURL = sandboxBaseURL
		}
	}
	return &Client{
		merchantID: merchantID,
		baseURL:    baseURL,
		verifier:   verifier,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logrus.WithField("component", "phonepe-client"),
	}
}

// Configured reports whether the client has usable credentials.
func (c *Client) Configured() bool {
	return c.merchantID != "" && c.verifier != nil && c.verifier.saltKey != ""
}

// PayRequest describes a payment initiation.
type PayRequest struct {
	MerchantTransactionID string
	AmountMinorUnits      int64
	CustomerPhone         string
	RedirectURL           string
	CallbackURL           string
}

// PayResponse carries the checkout handoff returned by PhonePe.
type PayResponse struct {
	ProviderTransactionID string
	RedirectURL           string
}

type payAPIPayload struct {
	MerchantID            string         `json:"merchantId"`
	MerchantTransactionID string         `json:"merchantTransactionId"`
	MerchantUserID        string         `json:"merchantUserId"`
	Amount                int64          `json:"amount"`
	RedirectURL           string         `json:"redirectUrl"`
	RedirectMode          string         `json:"redirectMode"`
	CallbackURL           string         `json:"callbackUrl"`
	MobileNumber          string         `json:"mobileNumber,omitempty"`
	PaymentInstrument     map[string]any `json:"paymentInstrument"`
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type payData struct {
	TransactionID      string `json:"transactionId"`
	InstrumentResponse struct {
		RedirectInfo struct {
			URL string `json:"url"`
		} `json:"redirectInfo"`
	} `json:"instrumentResponse"`
}

// CreatePayment initiates a Standard Checkout payment and returns the
// redirect URL for the hosted payment page.
func (c *Client) CreatePayment(ctx context.Context, req *PayRequest) (*PayResponse, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: PhonePe merchant id or salt key missing", models.ErrConfiguration)
	}

	payload := payAPIPayload{
		MerchantID:            c.merchantID,
		MerchantTransactionID: req.MerchantTransactionID,
		MerchantUserID:        "MUID-" + req.MerchantTransactionID,
		Amount:                req.AmountMinorUnits,
		RedirectURL:           req.RedirectURL,
		RedirectMode:          "REDIRECT",
		CallbackURL:           req.CallbackURL,
		MobileNumber:          req.CustomerPhone,
		PaymentInstrument:     map[string]any{"type": "PAY_PAGE"},
	}
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pay request: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(rawPayload)

	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pay envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+payPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build pay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", c.verifier.Sign(encoded, payPath))

	envelope, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var data payData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode pay response: %w", err)
	}
	if data.InstrumentResponse.RedirectInfo.URL == "" {
		return nil, fmt.Errorf("phonepe pay response missing redirect url (code %s)", envelope.Code)
	}
	return &PayResponse{
		ProviderTransactionID: data.TransactionID,
		RedirectURL:           data.InstrumentResponse.RedirectInfo.URL,
	}, nil
}

type statusData struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	State                 string `json:"state"`
	ResponseCode          string `json:"responseCode"`
	PaymentInstrument     struct {
		Type string `json:"type"`
	} `json:"paymentInstrument"`
	PaymentDetails []struct {
		TransactionID string `json:"transactionId"`
		State         string `json:"state"`
		PaymentMode   string `json:"paymentMode"`
		ErrorCode     string `json:"errorCode"`
		Timestamp     int64  `json:"timestamp"`
	} `json:"paymentDetails"`
}

// QueryStatus fetches the authoritative transaction status from PhonePe.
func (c *Client) QueryStatus(ctx context.Context, merchantTransactionID string) (*models.ProviderStatus, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: PhonePe merchant id or salt key missing", models.ErrConfiguration)
	}

	path := fmt.Sprintf("%s/%s/%s", statusPathBase, c.merchantID, merchantTransactionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-MERCHANT-ID", c.merchantID)
	// No payload on GET, so the signature covers only path and salt.
	httpReq.Header.Set("X-VERIFY", c.verifier.Sign("", path))

	envelope, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var data statusData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	status := &models.ProviderStatus{
		Gateway:               models.GatewayPhonePe,
		MerchantTransactionID: merchantTransactionID,
		OrderTransactionID:    data.TransactionID,
		OrderState:            MapState(data.State),
	}
	for _, attempt := range data.PaymentDetails {
		status.Attempts = append(status.Attempts, models.PaymentAttempt{
			ProviderTransactionID: attempt.TransactionID,
			State:                 MapState(attempt.State),
			Mode:                  attempt.PaymentMode,
			ErrorCode:             attempt.ErrorCode,
			Timestamp:             attempt.Timestamp,
		})
	}
	// Older API versions report a single instrument instead of attempts.
	if len(status.Attempts) == 0 && data.PaymentInstrument.Type != "" {
		status.Attempts = append(status.Attempts, models.PaymentAttempt{
			ProviderTransactionID: data.TransactionID,
			State:                 status.OrderState,
			Mode:                  data.PaymentInstrument.Type,
		})
	}
	return status, nil
}

func (c *Client) do(req *http.Request) (*apiEnvelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("phonepe request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read phonepe response: %w", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode phonepe response (status %d): %w", resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || envelope.Code == "PAYMENT_NOT_FOUND" || envelope.Code == "TRANSACTION_NOT_FOUND":
		return nil, fmt.Errorf("%w: %s", models.ErrTransactionNotFound, envelope.Code)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s (status %d)", models.ErrProviderAuth, envelope.Message, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("phonepe API error %s: %s (status %d)", envelope.Code, envelope.Message, resp.StatusCode)
	}
	return &envelope, nil
}

// MapState folds PhonePe's state and code vocabulary into the three
// states reconciliation cares about.
func MapState(state string) models.ProviderState {
	switch state {
	case "COMPLETED", "PAYMENT_SUCCESS", "SUCCESS":
		return models.StateCompleted
	case "PENDING", "PAYMENT_PENDING", "PAYMENT_INITIATED":
		return models.StatePending
	default:
		return models.StateFailed
	}
}
