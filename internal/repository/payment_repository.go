package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portfolio-payments/internal/models"
)

// Store is the persistence contract for payment records.
//
// Get and Update return a nil record (and nil error) when the merchant
// transaction ID is unknown; callers decide whether that is an error.
type Store interface {
	// Create inserts a payment record, or refreshes the mutable fields of
	// an existing one with the same merchant transaction ID. CreatedAt of
	// an existing row is preserved.
	Create(ctx context.Context, record *models.PaymentRecord) (*models.PaymentRecord, error)
	// Get fetches a payment record by merchant transaction ID.
	Get(ctx context.Context, merchantTransactionID string) (*models.PaymentRecord, error)
	// Update sets the status and applies the non-empty fields of patch.
	Update(ctx context.Context, merchantTransactionID string, status models.PaymentStatus, patch *models.PaymentPatch) (*models.PaymentRecord, error)
	// TryClaimNotification atomically flips notifications_sent from false
	// to true. Exactly one concurrent caller observes true.
	TryClaimNotification(ctx context.Context, merchantTransactionID string) (bool, error)
}

// WebhookEventStore records processed webhook deliveries for auditing and
// duplicate suppression.
type WebhookEventStore interface {
	// RecordEvent persists the delivery. It returns true when an event with
	// the same event ID was already recorded.
	RecordEvent(ctx context.Context, event *models.WebhookEvent) (duplicate bool, err error)
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a gorm-backed Store.
func NewPaymentRepository(db *gorm.DB) Store {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, record *models.PaymentRecord) (*models.PaymentRecord, error) {
	if record.MerchantTransactionID == "" {
		return nil, fmt.Errorf("%w: merchant transaction id is required", models.ErrValidation)
	}

	existing, err := r.Get(ctx, record.MerchantTransactionID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
			return nil, fmt.Errorf("failed to create payment record: %w", err)
		}
		return r.Get(ctx, record.MerchantTransactionID)
	}

	// Refresh: non-zero incoming fields win, CreatedAt and the notification
	// flag stay untouched.
	updates := mergeUpdates(record)
	if len(updates) > 0 {
		if err := r.db.WithContext(ctx).Model(&models.PaymentRecord{}).
			Where("merchant_transaction_id = ?", record.MerchantTransactionID).
			Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to refresh payment record: %w", err)
		}
	}
	return r.Get(ctx, record.MerchantTransactionID)
}

func mergeUpdates(record *models.PaymentRecord) map[string]interface{} {
	updates := map[string]interface{}{}
	set := func(column, value string) {
		if value != "" {
			updates[column] = value
		}
	}
	set("provider_transaction_id", record.ProviderTransactionID)
	set("gateway", string(record.Gateway))
	set("status", string(record.Status))
	set("currency", record.Currency)
	set("customer_name", record.CustomerName)
	set("customer_email", record.CustomerEmail)
	set("customer_phone", record.CustomerPhone)
	set("customer_message", record.CustomerMessage)
	set("service_id", record.ServiceID)
	set("service_name", record.ServiceName)
	set("payment_mode", record.PaymentMode)
	set("environment", string(record.Environment))
	if record.AmountMinorUnits != 0 {
		updates["amount_minor_units"] = record.AmountMinorUnits
	}
	return updates
}

func (r *paymentRepository) Get(ctx context.Context, merchantTransactionID string) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("merchant_transaction_id = ?", merchantTransactionID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment record: %w", err)
	}
	return &record, nil
}

func (r *paymentRepository) Update(ctx context.Context, merchantTransactionID string, status models.PaymentStatus, patch *models.PaymentPatch) (*models.PaymentRecord, error) {
	updates := map[string]interface{}{"status": status}
	if patch != nil {
		if patch.ProviderTransactionID != "" {
			updates["provider_transaction_id"] = patch.ProviderTransactionID
		}
		if patch.PaymentMode != "" {
			updates["payment_mode"] = patch.PaymentMode
		}
		if patch.CustomerEmail != "" {
			updates["customer_email"] = patch.CustomerEmail
		}
		if patch.CustomerPhone != "" {
			updates["customer_phone"] = patch.CustomerPhone
		}
	}

	result := r.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("merchant_transaction_id = ?", merchantTransactionID).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update payment record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.Get(ctx, merchantTransactionID)
}

func (r *paymentRepository) TryClaimNotification(ctx context.Context, merchantTransactionID string) (bool, error) {
	// Single guarded UPDATE so concurrent claimers race on the row, not in Go.
	result := r.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("merchant_transaction_id = ? AND notifications_sent = ?", merchantTransactionID, false).
		Update("notifications_sent", true)
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim notification: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a gorm-backed WebhookEventStore.
func NewWebhookEventRepository(db *gorm.DB) WebhookEventStore {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) RecordEvent(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	if event.EventID == "" {
		return false, fmt.Errorf("%w: event id is required", models.ErrValidation)
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", result.Error)
	}
	return result.RowsAffected == 0, nil
}
