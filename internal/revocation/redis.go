package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// KeyPrefix namespaces revocation keys.
const KeyPrefix = "revoked:"

// Redis keeps each revocation as a key that expires with its token, so the
// set is shared between instances and survives restarts.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedis creates a registry on top of a redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

// Revoke implements Registry.
func (r *Redis) Revoke(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	var ttl time.Duration
	if !expiresAt.IsZero() {
		ttl = expiresAt.Sub(r.now())
		if ttl < time.Second {
			ttl = time.Second
		}
	}
	ok, err := r.client.SetNX(ctx, KeyPrefix+jti, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("revoking token: %w", err)
	}
	return ok, nil
}

// IsRevoked implements Registry.
func (r *Redis) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, KeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return n > 0, nil
}
