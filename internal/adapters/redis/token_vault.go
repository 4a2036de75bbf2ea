package redis

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

// TokenVault stores refresh material per browser session. Entries expire
// with the refresh token, or after the fallback TTL when its expiry is unknown.
type TokenVault struct {
	client      redis.UniversalClient
	prefix      string
	fallbackTTL time.Duration
}

var _ ports.TokenVault = (*TokenVault)(nil)

// NewTokenVault creates a Redis-backed token vault.
func NewTokenVault(client redis.UniversalClient, fallbackTTL time.Duration) *TokenVault {
	if fallbackTTL <= 0 {
		fallbackTTL = 8 * time.Hour
	}
	return &TokenVault{client: client, prefix: "auth:vault:", fallbackTTL: fallbackTTL}
}

func (v *TokenVault) Save(ctx context.Context, sessionID string, e ports.VaultEntry) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if e.RefreshToken == "" {
		return errors.New("refresh token cannot be empty")
	}

	ttl := v.fallbackTTL
	if !e.ExpiresAt.IsZero() {
		ttl = time.Until(e.ExpiresAt)
		if ttl <= 0 {
			// Refresh token already expired; nothing worth keeping.
			return v.Delete(ctx, sessionID)
		}
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal vault entry: %w", err)
	}
	return v.client.Set(ctx, v.prefix+sessionID, data, ttl).Err()
}

func (v *TokenVault) Load(ctx context.Context, sessionID string) (ports.VaultEntry, error) {
	if sessionID == "" {
		return ports.VaultEntry{}, apperrors.NotFound("vault entry not found")
	}

	data, err := v.client.Get(ctx, v.prefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ports.VaultEntry{}, apperrors.NotFound("vault entry not found")
		}
		return ports.VaultEntry{}, fmt.Errorf("redis get: %w", err)
	}

	var e ports.VaultEntry
	if unmarshalErr := json.Unmarshal([]byte(data), &e); unmarshalErr != nil {
		return ports.VaultEntry{}, fmt.Errorf("unmarshal vault entry: %w", unmarshalErr)
	}
	return e, nil
}

func (v *TokenVault) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return v.client.Del(ctx, v.prefix+sessionID).Err()
}
