package revocation

import (
	"context"
	"time"

	"github.com/erazemk/storesapi/internal/db"
	"github.com/erazemk/storesapi/internal/store"
)

// SQL keeps revocations in the revoked_tokens table.
type SQL struct {
	DB *db.DB
}

// NewSQL creates a registry on top of the database.
func NewSQL(d *db.DB) *SQL {
	return &SQL{DB: d}
}

// Revoke implements Registry.
func (s *SQL) Revoke(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	return store.RevokeToken(ctx, s.DB, jti, expiresAt)
}

// IsRevoked implements Registry.
func (s *SQL) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return store.IsTokenRevoked(ctx, s.DB, jti)
}
