package store

import (
	"context"
	"database/sql"

	"github.com/erazemk/storesapi/internal/db"
	"github.com/erazemk/storesapi/internal/model"
)

// CreateStore creates a new store with a unique name.
func CreateStore(ctx context.Context, d *db.DB, name string) (*model.Store, error) {
	var id int64
	err := d.QueryRowContext(ctx,
		`INSERT INTO stores (name) VALUES (?) RETURNING id`, name,
	).Scan(&id)
	if db.IsUniqueViolation(err) {
		return nil, ErrStoreAlreadyExists
	}
	if err != nil {
		return nil, storageErr("creating store", err)
	}

	return &model.Store{ID: id, Name: name, Items: []model.ItemRef{}, Tags: []model.TagRef{}}, nil
}

// GetStore returns a store with its items and tags, or nil if it does not exist.
func GetStore(ctx context.Context, d *db.DB, id int64) (*model.Store, error) {
	s := &model.Store{}
	err := d.QueryRowContext(ctx,
		`SELECT id, name FROM stores WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("getting store", err)
	}

	items, err := listItemRefs(ctx, d, `SELECT id, name, price, store_id FROM items WHERE store_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	tags, err := listTagRefs(ctx, d, `SELECT id, name, store_id FROM tags WHERE store_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}

	s.Items = refsFor(items, id)
	s.Tags = tagRefsFor(tags, id)
	return s, nil
}

// ListStores returns every store with its items and tags.
func ListStores(ctx context.Context, d *db.DB) ([]model.Store, error) {
	rows, err := d.QueryContext(ctx, `SELECT id, name FROM stores ORDER BY id`)
	if err != nil {
		return nil, storageErr("listing stores", err)
	}

	var stores []model.Store
	for rows.Next() {
		var s model.Store
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			rows.Close()
			return nil, storageErr("scanning store", err)
		}
		stores = append(stores, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storageErr("listing stores", err)
	}

	items, err := listItemRefs(ctx, d, `SELECT id, name, price, store_id FROM items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	tags, err := listTagRefs(ctx, d, `SELECT id, name, store_id FROM tags ORDER BY id`)
	if err != nil {
		return nil, err
	}

	for i := range stores {
		stores[i].Items = refsFor(items, stores[i].ID)
		stores[i].Tags = tagRefsFor(tags, stores[i].ID)
	}
	return stores, nil
}

// DeleteStore removes a store together with its items, tags and their links.
func DeleteStore(ctx context.Context, d *db.DB, id int64) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("beginning transaction", err)
	}
	defer tx.Rollback()

	ok, err := storeExists(ctx, tx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStoreNotFound
	}

	stmts := []string{
		`DELETE FROM item_tag WHERE item_id IN (SELECT id FROM items WHERE store_id = ?)`,
		`DELETE FROM item_tag WHERE tag_id IN (SELECT id FROM tags WHERE store_id = ?)`,
		`DELETE FROM items WHERE store_id = ?`,
		`DELETE FROM tags WHERE store_id = ?`,
		`DELETE FROM stores WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return storageErr("deleting store", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("committing store deletion", err)
	}
	return nil
}

func storeExists(ctx context.Context, q db.Querier, id int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM stores WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storageErr("checking store", err)
	}
	return true, nil
}

func getStoreRef(ctx context.Context, q db.Querier, id int64) (*model.StoreRef, error) {
	ref := &model.StoreRef{}
	err := q.QueryRowContext(ctx, `SELECT id, name FROM stores WHERE id = ?`, id).Scan(&ref.ID, &ref.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("getting store", err)
	}
	return ref, nil
}

// ownedItem is an item reference that remembers its store.
type ownedItem struct {
	model.ItemRef
	storeID int64
}

// ownedTag is a tag reference that remembers its store.
type ownedTag struct {
	model.TagRef
	storeID int64
}

func listItemRefs(ctx context.Context, q db.Querier, query string, args ...any) ([]ownedItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("listing items", err)
	}
	defer rows.Close()

	var items []ownedItem
	for rows.Next() {
		var it ownedItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.storeID); err != nil {
			return nil, storageErr("scanning item", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("listing items", err)
	}
	return items, nil
}

func listTagRefs(ctx context.Context, q db.Querier, query string, args ...any) ([]ownedTag, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("listing tags", err)
	}
	defer rows.Close()

	var tags []ownedTag
	for rows.Next() {
		var tg ownedTag
		if err := rows.Scan(&tg.ID, &tg.Name, &tg.storeID); err != nil {
			return nil, storageErr("scanning tag", err)
		}
		tags = append(tags, tg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("listing tags", err)
	}
	return tags, nil
}

func refsFor(items []ownedItem, storeID int64) []model.ItemRef {
	out := []model.ItemRef{}
	for _, it := range items {
		if it.storeID == storeID {
			out = append(out, it.ItemRef)
		}
	}
	return out
}

func tagRefsFor(tags []ownedTag, storeID int64) []model.TagRef {
	out := []model.TagRef{}
	for _, tg := range tags {
		if tg.storeID == storeID {
			out = append(out, tg.TagRef)
		}
	}
	return out
}
