package cache

import (
	"context"
	"time"

	"github.com/mashoras/activity-service/internal/core/ports"
)

const blacklistPrefix = "blacklist:"

type TokenBlacklist struct {
	client Client
}

var _ ports.TokenBlacklist = (*TokenBlacklist)(nil)

func NewTokenBlacklist(client Client) *TokenBlacklist {
	return &TokenBlacklist{client: client}
}

// Revoke keeps the token id until ttl elapses, after which the token has
// expired anyway.
func (b *TokenBlacklist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	return b.client.Set(ctx, blacklistPrefix+tokenID, "revoked", ttl).Err()
}

func (b *TokenBlacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
