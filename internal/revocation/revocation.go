// Package revocation keeps the set of revoked token ids.
package revocation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/erazemk/storesapi/internal/db"
)

// Registry records revoked token ids. Entries only need to outlive the token
// they revoke, so every revocation carries the token's expiry. Revoke reports
// whether this call recorded the id, so callers that must consume a token
// exactly once can treat false as a lost race.
type Registry interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
)

// Open returns the registry for backend. An empty backend picks redis when a
// client is available and the SQL table otherwise.
func Open(backend string, d *db.DB, rdb *redis.Client) (Registry, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = BackendSQL
		if rdb != nil {
			backend = BackendRedis
		}
	}

	switch backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQL:
		if d == nil {
			return nil, fmt.Errorf("sql revocation backend needs a database")
		}
		return NewSQL(d), nil
	case BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis revocation backend needs REDIS_URL")
		}
		return NewRedis(rdb), nil
	}
	return nil, fmt.Errorf("unknown revocation backend %q", backend)
}
