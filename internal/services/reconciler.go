package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"portfolio-payments/internal/models"
	"portfolio-payments/internal/repository"
)

// Reconciler folds provider-reported status into stored payment records.
// It is the single place that decides what a payment's status becomes, so
// webhooks and status polls cannot disagree about the rules.
type Reconciler struct {
	store  repository.Store
	logger *logrus.Entry
}

// NewReconciler creates a Reconciler backed by store.
func NewReconciler(store repository.Store) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logrus.WithField("component", "reconciler"),
	}
}

// Reconcile applies status to the stored record and returns the updated
// record. A nil record means the merchant transaction ID is unknown.
func (r *Reconciler) Reconcile(ctx context.Context, status *models.ProviderStatus) (*models.PaymentRecord, error) {
	record, err := r.store.Get(ctx, status.MerchantTransactionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		r.logger.WithFields(logrus.Fields{
			"merchant_txn_id": status.MerchantTransactionID,
			"gateway":         status.Gateway,
		}).Warn("Provider status for unknown payment record")
		return nil, nil
	}

	newStatus, patch := ResolveStatus(record.Status, status)
	if newStatus == record.Status && patch == nil {
		return record, nil
	}

	updated, err := r.store.Update(ctx, status.MerchantTransactionID, newStatus, patch)
	if err != nil {
		return nil, err
	}
	r.logger.WithFields(logrus.Fields{
		"merchant_txn_id": status.MerchantTransactionID,
		"gateway":         status.Gateway,
		"from":            record.Status,
		"to":              newStatus,
	}).Info("Payment status reconciled")
	return updated, nil
}

// ResolveStatus decides the record's next status and field patch from a
// provider status snapshot.
//
// A payment counts as completed when either the order-level state or any
// attempt reports success. Providers have been observed marking an order
// FAILED while a late attempt within it succeeded, and treating any success
// signal as authoritative avoids dropping real money on the floor. A record
// that has reached COMPLETED is never downgraded by later signals.
func ResolveStatus(current models.PaymentStatus, status *models.ProviderStatus) (models.PaymentStatus, *models.PaymentPatch) {
	completed := status.CompletedAttempt()
	last := status.LastAttempt()
	orderCompleted := status.OrderState == models.StateCompleted

	var next models.PaymentStatus
	switch {
	case orderCompleted || completed != nil:
		next = models.PaymentCompleted
	case status.OrderState == models.StatePending || (last != nil && last.State == models.StatePending):
		next = models.PaymentPending
	default:
		next = models.PaymentFailed
	}

	if completed != nil && !orderCompleted {
		logrus.WithFields(logrus.Fields{
			"merchant_txn_id": status.MerchantTransactionID,
			"order_state":     status.OrderState,
			"attempt_txn_id":  completed.ProviderTransactionID,
		}).Warn("Order state disagrees with completed attempt, trusting the attempt")
	}

	// Sticky success: COMPLETED and REFUNDED are terminal. FAILED may still
	// flip to COMPLETED when a success signal arrives late. A downgrade
	// signal also must not overwrite the successful transaction reference.
	if current == models.PaymentCompleted || current == models.PaymentRefunded {
		if next != models.PaymentCompleted || current == models.PaymentRefunded {
			return current, nil
		}
	}
	// FAILED never slides back to PENDING. A pending signal after a recorded
	// failure carries no new information about the outcome.
	if current == models.PaymentFailed && next == models.PaymentPending {
		return current, nil
	}

	patch := &models.PaymentPatch{}
	// Provider transaction ID preference: the attempt that succeeded, then
	// the order-level ID, then whatever attempt ran last.
	switch {
	case completed != nil && completed.ProviderTransactionID != "":
		patch.ProviderTransactionID = completed.ProviderTransactionID
	case status.OrderTransactionID != "":
		patch.ProviderTransactionID = status.OrderTransactionID
	default:
		if last != nil && last.ProviderTransactionID != "" {
			patch.ProviderTransactionID = last.ProviderTransactionID
		} else {
			patch.ProviderTransactionID = status.MerchantTransactionID
		}
	}
	if completed != nil {
		patch.PaymentMode = completed.Mode
	} else if last != nil {
		patch.PaymentMode = last.Mode
	}

	if patch.ProviderTransactionID == "" && patch.PaymentMode == "" {
		patch = nil
	}
	return next, patch
}
