package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"portfolio-payments/internal/models"
)

func newTestRecord(id string) *models.PaymentRecord {
	return &models.PaymentRecord{
		MerchantTransactionID: id,
		Gateway:               models.GatewayPhonePe,
		Status:                models.PaymentPending,
		AmountMinorUnits:      150000,
		Currency:              "INR",
		CustomerName:          "Asha Rao",
		CustomerEmail:         "asha@example.com",
	}
}

func TestMemoryRepository_CreateAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, newTestRecord("TXN-001"))
	assert.NoError(t, err)
	assert.Equal(t, "TXN-001", created.MerchantTransactionID)
	assert.False(t, created.CreatedAt.IsZero())

	fetched, err := repo.Get(ctx, "TXN-001")
	assert.NoError(t, err)
	assert.NotNil(t, fetched)
	assert.Equal(t, models.PaymentPending, fetched.Status)

	missing, err := repo.Get(ctx, "TXN-UNKNOWN")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryRepository_CreateRejectsEmptyID(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.Create(context.Background(), &models.PaymentRecord{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestMemoryRepository_CreateUpsertPreservesCreatedAt(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first, err := repo.Create(ctx, newTestRecord("TXN-002"))
	assert.NoError(t, err)

	refreshed := newTestRecord("TXN-002")
	refreshed.CustomerEmail = "updated@example.com"
	refreshed.CustomerName = ""
	second, err := repo.Create(ctx, refreshed)
	assert.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "updated@example.com", second.CustomerEmail)
	// Zero-valued incoming fields never clear stored ones.
	assert.Equal(t, "Asha Rao", second.CustomerName)
}

func TestMemoryRepository_UpdateAppliesPatch(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, newTestRecord("TXN-003"))
	assert.NoError(t, err)

	updated, err := repo.Update(ctx, "TXN-003", models.PaymentCompleted, &models.PaymentPatch{
		ProviderTransactionID: "pp_ABC123",
		PaymentMode:           "UPI",
	})
	assert.NoError(t, err)
	assert.NotNil(t, updated)
	assert.Equal(t, models.PaymentCompleted, updated.Status)
	assert.Equal(t, "pp_ABC123", updated.ProviderTransactionID)
	assert.Equal(t, "UPI", updated.PaymentMode)
	// Unset patch fields must not clear existing values.
	assert.Equal(t, "asha@example.com", updated.CustomerEmail)
}

func TestMemoryRepository_UpdateUnknownReturnsNil(t *testing.T) {
	repo := NewMemoryRepository()

	record, err := repo.Update(context.Background(), "TXN-MISSING", models.PaymentFailed, nil)
	assert.NoError(t, err)
	assert.Nil(t, record)
}

func TestMemoryRepository_TryClaimNotification(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, newTestRecord("TXN-004"))
	assert.NoError(t, err)

	won, err := repo.TryClaimNotification(ctx, "TXN-004")
	assert.NoError(t, err)
	assert.True(t, won)

	again, err := repo.TryClaimNotification(ctx, "TXN-004")
	assert.NoError(t, err)
	assert.False(t, again)

	missing, err := repo.TryClaimNotification(ctx, "TXN-MISSING")
	assert.NoError(t, err)
	assert.False(t, missing)
}

func TestMemoryRepository_TryClaimNotificationConcurrent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, newTestRecord("TXN-005"))
	assert.NoError(t, err)

	const claimers = 32
	var wg sync.WaitGroup
	wins := make(chan bool, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := repo.TryClaimNotification(ctx, "TXN-005")
			assert.NoError(t, err)
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestMemoryWebhookEventStore_DuplicateDetection(t *testing.T) {
	store := NewMemoryWebhookEventStore()
	ctx := context.Background()

	event := &models.WebhookEvent{
		Gateway:   models.GatewayRazorpay,
		EventID:   "evt_001",
		EventType: "payment.captured",
	}

	dup, err := store.RecordEvent(ctx, event)
	assert.NoError(t, err)
	assert.False(t, dup)

	dup, err = store.RecordEvent(ctx, event)
	assert.NoError(t, err)
	assert.True(t, dup)

	_, err = store.RecordEvent(ctx, &models.WebhookEvent{})
	assert.ErrorIs(t, err, models.ErrValidation)
}
