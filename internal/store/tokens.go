package store

import (
	"context"
	"fmt"
	"time"

	"github.com/erazemk/storesapi/internal/db"
)

// RevokeToken adds a token's JTI to the revocation list. It reports whether
// this call inserted the row; false means the JTI was already revoked.
func RevokeToken(ctx context.Context, d *db.DB, jti string, expiresAt time.Time) (bool, error) {
	result, err := d.ExecContext(ctx,
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?) ON CONFLICT (jti) DO NOTHING`,
		jti, expiresAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("revoking token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoking token: %w", err)
	}

	// Opportunistically clean up expired revocations.
	_, _ = PurgeRevokedTokens(ctx, d, time.Now())

	return n > 0, nil
}

// IsTokenRevoked checks if a token's JTI has been revoked.
func IsTokenRevoked(ctx context.Context, d *db.DB, jti string) (bool, error) {
	var count int
	err := d.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`, jti,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return count > 0, nil
}

// PurgeRevokedTokens deletes revocations whose tokens expired before now.
func PurgeRevokedTokens(ctx context.Context, d *db.DB, now time.Time) (int64, error) {
	result, err := d.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purging revoked tokens: %w", err)
	}
	return result.RowsAffected()
}
