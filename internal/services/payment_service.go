package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"portfolio-payments/internal/models"
	"portfolio-payments/internal/phonepe"
	"portfolio-payments/internal/repository"
)

// PhonePeGateway is the PhonePe dependency of the payment service.
type PhonePeGateway interface {
	Configured() bool
	CreatePayment(ctx context.Context, req *phonepe.PayRequest) (*phonepe.PayResponse, error)
	QueryStatus(ctx context.Context, merchantTransactionID string) (*models.ProviderStatus, error)
}

// RazorpayGateway is the Razorpay dependency of the payment service.
type RazorpayGateway interface {
	Configured() bool
	KeyID() string
	CreateOrder(ctx context.Context, merchantTransactionID string, amountMinorUnits int64, currency string, notes map[string]interface{}) (string, error)
	QueryStatus(ctx context.Context, merchantTransactionID, orderID string) (*models.ProviderStatus, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) error
}

// NotificationCoordinator pairs the notification claim with the dispatcher
// so callers cannot dispatch without winning the claim first.
type NotificationCoordinator struct {
	store      repository.Store
	dispatcher *Dispatcher
	logger     *logrus.Entry
}

// NewNotificationCoordinator creates a coordinator over store and dispatcher.
func NewNotificationCoordinator(store repository.Store, dispatcher *Dispatcher) *NotificationCoordinator {
	return &NotificationCoordinator{
		store:      store,
		dispatcher: dispatcher,
		logger:     logrus.WithField("component", "notification-coordinator"),
	}
}

// NotifyIfCompleted dispatches notifications for a completed payment if this
// caller wins the claim. Losing the claim is the normal outcome when the
// webhook and the verify endpoint race; only one of them sends.
func (c *NotificationCoordinator) NotifyIfCompleted(ctx context.Context, record *models.PaymentRecord) {
	if record == nil || record.Status != models.PaymentCompleted {
		return
	}

	won, err := c.store.TryClaimNotification(ctx, record.MerchantTransactionID)
	if err != nil {
		c.logger.WithError(err).WithField("merchant_txn_id", record.MerchantTransactionID).
			Error("Failed to claim notification")
		return
	}
	if !won {
		c.logger.WithField("merchant_txn_id", record.MerchantTransactionID).
			Debug("Notification already claimed elsewhere")
		return
	}
	c.dispatcher.DispatchPaymentNotifications(ctx, record)
}

// PaymentService implements payment creation, verification, and lookup.
type PaymentService struct {
	store       repository.Store
	phonepe     PhonePeGateway
	razorpay    RazorpayGateway
	reconciler  *Reconciler
	poller      *StatusPoller
	coordinator *NotificationCoordinator
	environment models.Environment
	redirectURL string
	callbackURL string
	logger      *logrus.Entry
}

// NewPaymentService wires a PaymentService.
func NewPaymentService(
	store repository.Store,
	phonepeGateway PhonePeGateway,
	razorpayGateway RazorpayGateway,
	reconciler *Reconciler,
	poller *StatusPoller,
	coordinator *NotificationCoordinator,
	environment models.Environment,
	redirectURL, callbackURL string,
) *PaymentService {
	return &PaymentService{
		store:       store,
		phonepe:     phonepeGateway,
		razorpay:    razorpayGateway,
		reconciler:  reconciler,
		poller:      poller,
		coordinator: coordinator,
		environment: environment,
		redirectURL: redirectURL,
		callbackURL: callbackURL,
		logger:      logrus.WithField("component", "payment-service"),
	}
}

// CreatePayment validates the request, initiates the payment with the chosen
// provider, and stores a pending record.
func (s *PaymentService) CreatePayment(ctx context.Context, req *models.CreatePaymentRequest) (*models.CreatePaymentResponse, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}
	gateway := models.GatewayType(strings.ToUpper(string(req.Gateway)))
	if gateway == "" {
		gateway = models.GatewayPhonePe
	}
	if gateway != models.GatewayPhonePe && gateway != models.GatewayRazorpay {
		return nil, fmt.Errorf("%w: unsupported gateway %q", models.ErrValidation, req.Gateway)
	}

	amountMinor := int64(math.Round(req.Amount * 100))
	merchantTxnID := "TXN-" + strings.ToUpper(uuid.New().String()[:18])

	record := &models.PaymentRecord{
		MerchantTransactionID: merchantTxnID,
		Gateway:               gateway,
		Status:                models.PaymentPending,
		AmountMinorUnits:      amountMinor,
		Currency:              "INR",
		ServiceID:             req.ServiceID,
		ServiceName:           req.ServiceName,
		Environment:           s.environment,
	}
	if req.Customer != nil {
		record.CustomerName = req.Customer.Name
		record.CustomerEmail = req.Customer.Email
		record.CustomerPhone = req.Customer.Phone
		record.CustomerMessage = req.Customer.Message
	}

	resp := &models.CreatePaymentResponse{
		MerchantTransactionID: merchantTxnID,
		Gateway:               gateway,
		AmountMinorUnits:      amountMinor,
		Currency:              record.Currency,
	}

	switch gateway {
	case models.GatewayPhonePe:
		payResp, err := s.phonepe.CreatePayment(ctx, &phonepe.PayRequest{
			MerchantTransactionID: merchantTxnID,
			AmountMinorUnits:      amountMinor,
			CustomerPhone:         record.CustomerPhone,
			RedirectURL:           s.redirectURL,
			CallbackURL:           s.callbackURL,
		})
		if err != nil {
			return nil, err
		}
		record.ProviderTransactionID = payResp.ProviderTransactionID
		resp.RedirectURL = payResp.RedirectURL

	case models.GatewayRazorpay:
		notes := map[string]interface{}{"merchantTransactionId": merchantTxnID}
		if record.ServiceName != "" {
			notes["service"] = record.ServiceName
		}
		orderID, err := s.razorpay.CreateOrder(ctx, merchantTxnID, amountMinor, record.Currency, notes)
		if err != nil {
			return nil, err
		}
		record.ProviderTransactionID = orderID
		resp.ProviderOrderID = orderID
		resp.KeyID = s.razorpay.KeyID()
	}

	if _, err := s.store.Create(ctx, record); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"merchant_txn_id": merchantTxnID,
		"gateway":         gateway,
		"amount":          amountMinor,
	}).Info("Payment initiated")
	return resp, nil
}

// VerifyPayment checks the payment's current status with the provider,
// reconciles the stored record, and triggers notifications on success.
//
// When the provider never indexes the transaction inside the retry budget,
// the stored record is returned as-is with a warning instead of failing the
// request; the webhook usually arrives later and settles it.
func (s *PaymentService) VerifyPayment(ctx context.Context, req *models.VerifyPaymentRequest) (*models.VerifyPaymentResponse, error) {
	record, err := s.store.Get(ctx, req.MerchantTransactionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrPaymentNotFound, req.MerchantTransactionID)
	}

	// Razorpay checkout hands the browser a payment ID and a signature;
	// check them before trusting anything else from the client.
	if record.Gateway == models.GatewayRazorpay && req.RazorpayPaymentID != "" {
		if err := s.razorpay.VerifyPaymentSignature(record.ProviderTransactionID, req.RazorpayPaymentID, req.RazorpaySignature); err != nil {
			return nil, err
		}
	}

	status, err := s.poller.Poll(ctx, record.MerchantTransactionID, s.statusQuery(record))
	if err != nil {
		if errors.Is(err, models.ErrTransactionNotFound) {
			s.logger.WithField("merchant_txn_id", record.MerchantTransactionID).
				Warn("Provider has not indexed the transaction yet, returning stored status")
			return buildVerifyResponse(record, "provider has not confirmed this transaction yet; status will settle via webhook"), nil
		}
		return nil, err
	}

	updated, err := s.reconciler.Reconcile(ctx, status)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = record
	}

	s.coordinator.NotifyIfCompleted(ctx, updated)
	return buildVerifyResponse(updated, ""), nil
}

// GetPayment fetches a payment record by merchant transaction ID.
func (s *PaymentService) GetPayment(ctx context.Context, merchantTransactionID string) (*models.PaymentRecord, error) {
	record, err := s.store.Get(ctx, merchantTransactionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrPaymentNotFound, merchantTransactionID)
	}
	return record, nil
}

func (s *PaymentService) statusQuery(record *models.PaymentRecord) StatusQuery {
	if record.Gateway == models.GatewayRazorpay {
		return func(ctx context.Context) (*models.ProviderStatus, error) {
			return s.razorpay.QueryStatus(ctx, record.MerchantTransactionID, record.ProviderTransactionID)
		}
	}
	return func(ctx context.Context) (*models.ProviderStatus, error) {
		return s.phonepe.QueryStatus(ctx, record.MerchantTransactionID)
	}
}

func buildVerifyResponse(record *models.PaymentRecord, warning string) *models.VerifyPaymentResponse {
	return &models.VerifyPaymentResponse{
		Payment:     record,
		IsCompleted: record.Status == models.PaymentCompleted,
		IsPending:   record.Status == models.PaymentPending,
		IsFailed:    record.Status == models.PaymentFailed,
		Warning:     warning,
	}
}
