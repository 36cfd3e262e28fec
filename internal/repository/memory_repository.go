package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"portfolio-payments/internal/models"
)

// memoryRepository is an in-process Store used when no database is
// configured. Records do not survive a restart.
type memoryRepository struct {
	mu      sync.Mutex
	records map[string]*models.PaymentRecord
}

// NewMemoryRepository creates an in-memory Store.
func NewMemoryRepository() Store {
	return &memoryRepository{records: make(map[string]*models.PaymentRecord)}
}

func (r *memoryRepository) Create(ctx context.Context, record *models.PaymentRecord) (*models.PaymentRecord, error) {
	if record.MerchantTransactionID == "" {
		return nil, fmt.Errorf("%w: merchant transaction id is required", models.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	existing, ok := r.records[record.MerchantTransactionID]
	if !ok {
		stored := cloneRecord(record)
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		stored.UpdatedAt = now
		r.records[record.MerchantTransactionID] = stored
		return cloneRecord(stored), nil
	}

	// Refresh: non-zero incoming fields win, CreatedAt and the notification
	// flag stay untouched.
	mergeNonZero(existing, record)
	existing.UpdatedAt = now
	return cloneRecord(existing), nil
}

func mergeNonZero(dst, src *models.PaymentRecord) {
	setStr := func(d *string, v string) {
		if v != "" {
			*d = v
		}
	}
	setStr(&dst.ProviderTransactionID, src.ProviderTransactionID)
	setStr(&dst.CustomerName, src.CustomerName)
	setStr(&dst.CustomerEmail, src.CustomerEmail)
	setStr(&dst.CustomerPhone, src.CustomerPhone)
	setStr(&dst.CustomerMessage, src.CustomerMessage)
	setStr(&dst.ServiceID, src.ServiceID)
	setStr(&dst.ServiceName, src.ServiceName)
	setStr(&dst.PaymentMode, src.PaymentMode)
	setStr(&dst.Currency, src.Currency)
	if src.Gateway != "" {
		dst.Gateway = src.Gateway
	}
	if src.Status != "" {
		dst.Status = src.Status
	}
	if src.Environment != "" {
		dst.Environment = src.Environment
	}
	if src.AmountMinorUnits != 0 {
		dst.AmountMinorUnits = src.AmountMinorUnits
	}
}

func (r *memoryRepository) Get(ctx context.Context, merchantTransactionID string) (*models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[merchantTransactionID]
	if !ok {
		return nil, nil
	}
	return cloneRecord(record), nil
}

func (r *memoryRepository) Update(ctx context.Context, merchantTransactionID string, status models.PaymentStatus, patch *models.PaymentPatch) (*models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[merchantTransactionID]
	if !ok {
		return nil, nil
	}

	record.Status = status
	if patch != nil {
		if patch.ProviderTransactionID != "" {
			record.ProviderTransactionID = patch.ProviderTransactionID
		}
		if patch.PaymentMode != "" {
			record.PaymentMode = patch.PaymentMode
		}
		if patch.CustomerEmail != "" {
			record.CustomerEmail = patch.CustomerEmail
		}
		if patch.CustomerPhone != "" {
			record.CustomerPhone = patch.CustomerPhone
		}
	}
	record.UpdatedAt = time.Now()
	return cloneRecord(record), nil
}

func (r *memoryRepository) TryClaimNotification(ctx context.Context, merchantTransactionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[merchantTransactionID]
	if !ok {
		return false, nil
	}
	if record.NotificationsSent {
		return false, nil
	}
	record.NotificationsSent = true
	record.UpdatedAt = time.Now()
	return true, nil
}

func cloneRecord(record *models.PaymentRecord) *models.PaymentRecord {
	clone := *record
	return &clone
}

// memoryWebhookEventStore is the in-process WebhookEventStore counterpart.
type memoryWebhookEventStore struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	events []*models.WebhookEvent
}

// NewMemoryWebhookEventStore creates an in-memory WebhookEventStore.
func NewMemoryWebhookEventStore() WebhookEventStore {
	return &memoryWebhookEventStore{seen: make(map[string]struct{})}
}

func (s *memoryWebhookEventStore) RecordEvent(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	if event.EventID == "" {
		return false, fmt.Errorf("%w: event id is required", models.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[event.EventID]; ok {
		return true, nil
	}
	s.seen[event.EventID] = struct{}{}
	stored := *event
	stored.CreatedAt = time.Now()
	s.events = append(s.events, &stored)
	return false, nil
}
