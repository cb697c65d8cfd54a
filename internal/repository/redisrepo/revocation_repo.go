// internal/repository/redisrepo/revocation_repo.go
package redisrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationRepository is the deny-list of individually blacklisted access
// credentials. Keys are token hashes and expire with the credential itself,
// so the list is self-pruning.
type RevocationRepository struct {
	client *redis.Client
}

func NewRevocationRepository(client *redis.Client) *RevocationRepository {
	return &RevocationRepository{client: client}
}

// Revoke adds a credential hash with TTL equal to the credential's remaining
// lifetime. A non-positive TTL means the credential is already dead.
func (r *RevocationRepository) Revoke(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	key := r.key(tokenHash)
	if err := r.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to deny-list token: %w", err)
	}
	return nil
}

// IsRevoked checks the deny-list by credential hash.
func (r *RevocationRepository) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	exists, err := r.client.Exists(ctx, r.key(tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check deny-list: %w", err)
	}
	return exists > 0, nil
}

func (r *RevocationRepository) key(tokenHash string) string {
	return fmt.Sprintf("denylist:%s", tokenHash)
}
