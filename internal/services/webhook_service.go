package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"portfolio-payments/internal/models"
	"portfolio-payments/internal/phonepe"
	"portfolio-payments/internal/repository"
)

// PhonePeVerifier checks PhonePe X-VERIFY headers.
type PhonePeVerifier interface {
	Verify(rawBody []byte, xVerify string) (recipe string, err error)
}

// RazorpayWebhookVerifier checks Razorpay webhook signatures.
type RazorpayWebhookVerifier interface {
	VerifyWebhookSignature(rawBody []byte, signature string) error
}

// WebhookService processes inbound provider callbacks. Signature handling
// depends on the trust tier: production rejects bad signatures, sandbox logs
// and continues because PhonePe's preprod signing has been unreliable.
type WebhookService struct {
	phonepeVerifier  PhonePeVerifier
	razorpayVerifier RazorpayWebhookVerifier
	reconciler       *Reconciler
	coordinator      *NotificationCoordinator
	events           repository.WebhookEventStore
	environment      models.Environment
	logger           *logrus.Entry
}

// NewWebhookService wires a WebhookService.
func NewWebhookService(
	phonepeVerifier PhonePeVerifier,
	razorpayVerifier RazorpayWebhookVerifier,
	reconciler *Reconciler,
	coordinator *NotificationCoordinator,
	events repository.WebhookEventStore,
	environment models.Environment,
) *WebhookService {
	return &WebhookService{
		phonepeVerifier:  phonepeVerifier,
		razorpayVerifier: razorpayVerifier,
		reconciler:       reconciler,
		coordinator:      coordinator,
		events:           events,
		environment:      environment,
		logger:           logrus.WithField("component", "webhook-service"),
	}
}

type phonePeCallback struct {
	Response string `json:"response"`
}

type phonePeCallbackPayload struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		State                 string `json:"state"`
		Amount                int64  `json:"amount"`
		ResponseCode          string `json:"responseCode"`
		PaymentInstrument     struct {
			Type string `json:"type"`
		} `json:"paymentInstrument"`
	} `json:"data"`
}

// ProcessPhonePeWebhook verifies and applies a PhonePe server-to-server
// callback. The callback body carries a base64-encoded payload under
// "response".
func (s *WebhookService) ProcessPhonePeWebhook(ctx context.Context, rawBody []byte, xVerify string) error {
	log := s.logger.WithField("gateway", models.GatewayPhonePe)

	recipe, err := s.phonepeVerifier.Verify(rawBody, xVerify)
	if err != nil {
		if s.environment == models.EnvProduction {
			return err
		}
		log.WithError(err).Warn("X-VERIFY check failed, continuing in sandbox")
	} else {
		log.WithField("recipe", recipe).Debug("X-VERIFY verified")
	}

	var callback phonePeCallback
	if err := json.Unmarshal(rawBody, &callback); err != nil {
		return fmt.Errorf("%w: malformed callback body", models.ErrValidation)
	}
	if callback.Response == "" {
		return fmt.Errorf("%w: callback missing response field", models.ErrValidation)
	}

	decoded, err := base64.StdEncoding.DecodeString(callback.Response)
	if err != nil {
		return fmt.Errorf("%w: callback response is not valid base64", models.ErrValidation)
	}
	var payload phonePeCallbackPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return fmt.Errorf("%w: callback response is not valid JSON", models.ErrValidation)
	}
	if payload.Data.MerchantTransactionID == "" {
		return fmt.Errorf("%w: callback missing merchant transaction id", models.ErrValidation)
	}

	// PhonePe callbacks carry no event ID, so dedup on transaction and code.
	eventID := fmt.Sprintf("phonepe:%s:%s", payload.Data.MerchantTransactionID, payload.Code)
	if s.isDuplicate(ctx, models.GatewayPhonePe, eventID, payload.Code, rawBody, log) {
		return nil
	}

	state := payload.Data.State
	if state == "" {
		state = payload.Code
	}
	status := &models.ProviderStatus{
		Gateway:               models.GatewayPhonePe,
		MerchantTransactionID: payload.Data.MerchantTransactionID,
		OrderTransactionID:    payload.Data.TransactionID,
		OrderState:            phonepe.MapState(state),
		AmountMinorUnits:      payload.Data.Amount,
	}
	if payload.Data.TransactionID != "" {
		status.Attempts = []models.PaymentAttempt{{
			ProviderTransactionID: payload.Data.TransactionID,
			State:                 status.OrderState,
			Mode:                  payload.Data.PaymentInstrument.Type,
			ErrorCode:             payload.Data.ResponseCode,
		}}
	}

	record, err := s.reconciler.Reconcile(ctx, status)
	if err != nil {
		return err
	}
	s.coordinator.NotifyIfCompleted(ctx, record)
	return nil
}

type razorpayWebhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID        string                 `json:"id"`
				OrderID   string                 `json:"order_id"`
				Status    string                 `json:"status"`
				Method    string                 `json:"method"`
				Amount    int64                  `json:"amount"`
				ErrorCode string                 `json:"error_code"`
				CreatedAt int64                  `json:"created_at"`
				Notes     map[string]interface{} `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ProcessRazorpayWebhook verifies and applies a Razorpay webhook delivery.
// eventID comes from the X-Razorpay-Event-Id header and drives duplicate
// suppression, since Razorpay redelivers on slow acks.
func (s *WebhookService) ProcessRazorpayWebhook(ctx context.Context, rawBody []byte, signature, eventID string) error {
	log := s.logger.WithField("gateway", models.GatewayRazorpay)

	if err := s.razorpayVerifier.VerifyWebhookSignature(rawBody, signature); err != nil {
		if s.environment == models.EnvProduction {
			return err
		}
		log.WithError(err).Warn("Webhook signature check failed, continuing in sandbox")
	}

	var payload razorpayWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return fmt.Errorf("%w: malformed webhook body", models.ErrValidation)
	}

	switch payload.Event {
	case "payment.captured", "payment.failed", "payment.authorized":
	default:
		log.WithField("event", payload.Event).Debug("Ignoring unhandled webhook event")
		return nil
	}

	entity := payload.Payload.Payment.Entity
	merchantTxnID, _ := entity.Notes["merchantTransactionId"].(string)
	if merchantTxnID == "" {
		return fmt.Errorf("%w: webhook payment carries no merchant transaction id", models.ErrValidation)
	}

	if eventID == "" {
		eventID = fmt.Sprintf("razorpay:%s:%s", entity.ID, payload.Event)
	}
	if s.isDuplicate(ctx, models.GatewayRazorpay, eventID, payload.Event, rawBody, log) {
		return nil
	}

	attemptState := mapRazorpayEventState(payload.Event, entity.Status)
	orderState := attemptState
	if attemptState == models.StateFailed {
		// One failed attempt does not fail the order; the customer can retry.
		orderState = models.StatePending
	}
	status := &models.ProviderStatus{
		Gateway:               models.GatewayRazorpay,
		MerchantTransactionID: merchantTxnID,
		OrderTransactionID:    entity.OrderID,
		OrderState:            orderState,
		AmountMinorUnits:      entity.Amount,
		Attempts: []models.PaymentAttempt{{
			ProviderTransactionID: entity.ID,
			State:                 attemptState,
			Mode:                  entity.Method,
			ErrorCode:             entity.ErrorCode,
			Timestamp:             entity.CreatedAt,
		}},
	}

	record, err := s.reconciler.Reconcile(ctx, status)
	if err != nil {
		return err
	}
	s.coordinator.NotifyIfCompleted(ctx, record)
	return nil
}

// isDuplicate records the delivery and reports whether it was seen before.
// Audit failures never block processing.
func (s *WebhookService) isDuplicate(ctx context.Context, gateway models.GatewayType, eventID, eventType string, rawBody []byte, log *logrus.Entry) bool {
	if s.events == nil {
		return false
	}

	var payload models.JSONB
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		payload = models.JSONB{"raw": string(rawBody)}
	}
	duplicate, err := s.events.RecordEvent(ctx, &models.WebhookEvent{
		Gateway:   gateway,
		EventID:   eventID,
		EventType: eventType,
		Payload:   payload,
		Processed: true,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to record webhook event")
		return false
	}
	if duplicate {
		log.WithField("event_id", eventID).Info("Duplicate webhook delivery suppressed")
	}
	return duplicate
}

func mapRazorpayEventState(event, status string) models.ProviderState {
	switch event {
	case "payment.captured":
		return models.StateCompleted
	case "payment.failed":
		return models.StateFailed
	default:
		if status == "captured" {
			return models.StateCompleted
		}
		return models.StatePending
	}
}
