package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevoker stores revoked token ids as keys that expire with the token.
type RedisRevoker struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{client: client, now: time.Now}
}

func revokedKey(tokenID string) string {
	return fmt.Sprintf("auth:revoked:%s", tokenID)
}

func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(r.now())
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, err := r.client.Get(ctx, revokedKey(tokenID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check token: %w", err)
	}
	return true, nil
}
