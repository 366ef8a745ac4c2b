package db

import (
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent and valid on every dialect. Append new
// migrations at the end.
var migrations = []string{
	// Migration 1: lookup indexes for the store aggregate.
	`CREATE INDEX IF NOT EXISTS idx_items_store ON items(store_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tags_store ON tags(store_id)`,
	`CREATE INDEX IF NOT EXISTS idx_item_tag_tag ON item_tag(tag_id)`,

	// Migration 2: expired revocations are purged by range.
	`CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expires ON revoked_tokens(expires_at)`,
}

// Migrate ensures the schema and runs the migrations.
func Migrate(d *DB) error {
	if err := EnsureSchema(d); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		if _, err := d.DB.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
