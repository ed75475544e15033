package azureauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisFlowKeyPrefix = "azureauth:flow:"

// RedisFlowStore persists pending flows in Redis so the callback can be
// handled by a different replica than the one that generated the sign-in
// URL. Expiry is enforced by Redis key TTLs.
type RedisFlowStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisFlowStore wraps an existing Redis client. A non-positive TTL
// selects the default of ten minutes.
func NewRedisFlowStore(client redis.UniversalClient, ttl time.Duration) *RedisFlowStore {
	if ttl <= 0 {
		ttl = defaultFlowTTL
	}
	return &RedisFlowStore{client: client, ttl: ttl}
}

// Save stores the flow under its state with the configured TTL.
func (s *RedisFlowStore) Save(ctx context.Context, flow *AuthFlow) error {
	if flow == nil || flow.State == "" {
		return fmt.Errorf("flow state must not be empty")
	}
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}
	if err := s.client.Set(ctx, redisFlowKeyPrefix+flow.State, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store flow: %w", err)
	}
	return nil
}

// Take removes and returns the flow for the given state.
func (s *RedisFlowStore) Take(ctx context.Context, state string) (*AuthFlow, error) {
	data, err := s.client.GetDel(ctx, redisFlowKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load flow: %w", err)
	}
	var flow AuthFlow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
	}
	return &flow, nil
}
