package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// claimTTL bounds how long a Redis claim key lives. The durable flag on the
// payment record is the source of truth; the key only arbitrates races
// between processes inside this window.
const claimTTL = 24 * time.Hour

// redisClaimStore layers a cross-process notification claim on top of an
// inner Store using SETNX. Useful when several replicas share one database
// but the claim must also guard non-database stores.
type redisClaimStore struct {
	Store
	client *redis.Client
	logger *logrus.Entry
}

// NewRedisClaimStore wraps inner so TryClaimNotification first acquires a
// Redis lock before consulting the inner store.
func NewRedisClaimStore(inner Store, client *redis.Client) Store {
	return &redisClaimStore{
		Store:  inner,
		client: client,
		logger: logrus.WithField("component", "redis-claim"),
	}
}

func (s *redisClaimStore) TryClaimNotification(ctx context.Context, merchantTransactionID string) (bool, error) {
	key := fmt.Sprintf("payments:notified:%s", merchantTransactionID)
	acquired, err := s.client.SetNX(ctx, key, "1", claimTTL).Result()
	if err != nil {
		// Redis being down must not strand notifications; fall back to the
		// inner store's own atomicity.
		s.logger.WithError(err).Warn("Redis claim unavailable, falling back to store claim")
		return s.Store.TryClaimNotification(ctx, merchantTransactionID)
	}
	if !acquired {
		return false, nil
	}

	won, err := s.Store.TryClaimNotification(ctx, merchantTransactionID)
	if err != nil {
		// Release so a later attempt can retry the claim.
		if delErr := s.client.Del(ctx, key).Err(); delErr != nil {
			s.logger.WithError(delErr).Warn("Failed to release Redis claim key")
		}
		return false, err
	}
	if !won {
		return false, nil
	}
	return true, nil
}

var _ Store = (*redisClaimStore)(nil)
