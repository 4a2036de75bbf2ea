package redis

// Package redis provides Redis-based adapters for the members console.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	apperrors "github.com/target/members-console/internal/errors"
	"github.com/target/members-console/internal/ports"
)

// PendingStore keeps pending authorizations across the login redirect.
// Records are single-use: Take reads and deletes atomically.
type PendingStore struct {
	client redis.UniversalClient
	prefix string
}

var _ ports.PendingStore = (*PendingStore)(nil)

// NewPendingStore creates a Redis-backed pending authorization store.
func NewPendingStore(client redis.UniversalClient) *PendingStore {
	return NewPendingStoreWithPrefix(client, "auth:pending:")
}

// NewPendingStoreWithPrefix creates a pending store with a custom key prefix.
func NewPendingStoreWithPrefix(client redis.UniversalClient, prefix string) *PendingStore {
	return &PendingStore{client: client, prefix: prefix}
}

func (s *PendingStore) Save(ctx context.Context, p ports.PendingAuthorization, ttl time.Duration) error {
	if p.State == "" {
		return errors.New("state cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending authorization: %w", err)
	}
	return s.client.Set(ctx, s.prefix+p.State, data, ttl).Err()
}

func (s *PendingStore) Take(ctx context.Context, state string) (ports.PendingAuthorization, error) {
	if state == "" {
		return ports.PendingAuthorization{}, apperrors.NotFound("pending authorization not found")
	}

	data, err := s.client.GetDel(ctx, s.prefix+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ports.PendingAuthorization{}, apperrors.NotFound("pending authorization not found")
		}
		return ports.PendingAuthorization{}, fmt.Errorf("redis getdel: %w", err)
	}

	var p ports.PendingAuthorization
	if unmarshalErr := json.Unmarshal([]byte(data), &p); unmarshalErr != nil {
		return ports.PendingAuthorization{}, fmt.Errorf("unmarshal pending authorization: %w", unmarshalErr)
	}
	return p, nil
}
