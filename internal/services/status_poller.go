package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"portfolio-payments/internal/models"
)

// StatusQuery fetches a provider's view of one transaction.
type StatusQuery func(ctx context.Context) (*models.ProviderStatus, error)

// StatusPoller retries provider status queries while the provider has not
// yet indexed the transaction. Providers can acknowledge a payment on their
// checkout page before their status API knows about it.
type StatusPoller struct {
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *logrus.Entry
}

// NewStatusPoller creates a poller making at most attempts queries with a
// fixed backoff between them.
func NewStatusPoller(attempts int, backoff time.Duration) *StatusPoller {
	if attempts < 1 {
		attempts = 1
	}
	return &StatusPoller{
		attempts: attempts,
		backoff:  backoff,
		sleep:    sleepContext,
		logger:   logrus.WithField("component", "status-poller"),
	}
}

// Poll runs query until it returns a status, a non-retryable error, or the
// attempt budget is spent. Only a transaction-not-found answer is retried;
// any other error means the provider responded and retrying will not help.
func (p *StatusPoller) Poll(ctx context.Context, merchantTransactionID string, query StatusQuery) (*models.ProviderStatus, error) {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		status, err := query(ctx)
		if err == nil {
			return status, nil
		}
		if !errors.Is(err, models.ErrTransactionNotFound) {
			return nil, err
		}
		lastErr = err

		if attempt < p.attempts {
			p.logger.WithFields(logrus.Fields{
				"merchant_txn_id": merchantTransactionID,
				"attempt":         attempt,
				"backoff":         p.backoff.String(),
			}).Info("Transaction not visible yet, retrying status query")
			if err := p.sleep(ctx, p.backoff); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
