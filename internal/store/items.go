package store

import (
	"context"
	"database/sql"

	"github.com/erazemk/storesapi/internal/db"
	"github.com/erazemk/storesapi/internal/model"
)

// ItemUpdate holds the fields of an item update. Nil fields are left alone on
// an existing item and are required when the update creates one.
type ItemUpdate struct {
	Name    *string
	Price   *float64
	StoreID *int64
}

// CreateItem creates an item in an existing store. The store check, the
// duplicate-name check and the insert run in one transaction; the
// (store_id, name) unique index decides races between concurrent creates.
func CreateItem(ctx context.Context, d *db.DB, name string, price float64, storeID int64) (*model.Item, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("beginning transaction", err)
	}
	defer tx.Rollback()

	id, err := insertItem(ctx, tx, 0, name, price, storeID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("committing item", err)
	}

	return GetItem(ctx, d, id)
}

// UpsertItem updates name and price of the item with the given id, or creates
// the item under that id when it does not exist. The boolean result reports
// whether the item was created.
func UpsertItem(ctx context.Context, d *db.DB, id int64, upd ItemUpdate) (*model.Item, bool, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, storageErr("beginning transaction", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM items WHERE id = ?`, id).Scan(&existing)
	created := err == sql.ErrNoRows
	if err != nil && !created {
		return nil, false, storageErr("getting item", err)
	}

	if created {
		if upd.Name == nil || upd.Price == nil || upd.StoreID == nil {
			return nil, false, ErrIncompleteItem
		}
		if _, err := insertItem(ctx, tx, id, *upd.Name, *upd.Price, *upd.StoreID); err != nil {
			return nil, false, err
		}
	} else {
		var name sql.NullString
		var price sql.NullFloat64
		if upd.Name != nil {
			name = sql.NullString{String: *upd.Name, Valid: true}
		}
		if upd.Price != nil {
			price = sql.NullFloat64{Float64: *upd.Price, Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE items SET name = COALESCE(?, name), price = COALESCE(?, price) WHERE id = ?`,
			name, price, id,
		)
		if db.IsUniqueViolation(err) {
			return nil, false, ErrItemAlreadyExists
		}
		if err != nil {
			return nil, false, storageErr("updating item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, storageErr("committing item", err)
	}

	item, err := GetItem(ctx, d, id)
	if err != nil {
		return nil, false, err
	}
	return item, created, nil
}

// insertItem runs the existence and uniqueness checks and inserts the row.
// An id of zero lets the database assign one.
func insertItem(ctx context.Context, tx *db.Tx, id int64, name string, price float64, storeID int64) (int64, error) {
	ok, err := storeExists(ctx, tx, storeID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrStoreNotFound
	}

	var dup int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE store_id = ? AND name = ?`, storeID, name,
	).Scan(&dup)
	if err != nil {
		return 0, storageErr("checking item name", err)
	}
	if dup > 0 {
		return 0, ErrItemAlreadyExists
	}

	var row *sql.Row
	if id == 0 {
		row = tx.QueryRowContext(ctx,
			`INSERT INTO items (name, price, store_id) VALUES (?, ?, ?) RETURNING id`,
			name, price, storeID,
		)
	} else {
		row = tx.QueryRowContext(ctx,
			`INSERT INTO items (id, name, price, store_id) VALUES (?, ?, ?, ?) RETURNING id`,
			id, name, price, storeID,
		)
	}

	var newID int64
	err = row.Scan(&newID)
	switch {
	case db.IsUniqueViolation(err):
		return 0, ErrItemAlreadyExists
	case db.IsForeignKeyViolation(err):
		return 0, ErrStoreNotFound
	case err != nil:
		return 0, storageErr("creating item", err)
	}

	// An explicit id leaves the identity sequence behind on PostgreSQL.
	if id != 0 && tx.Dialect == db.Postgres {
		_, err := tx.ExecContext(ctx,
			`SELECT setval(pg_get_serial_sequence('items', 'id'), (SELECT MAX(id) FROM items))`,
		)
		if err != nil {
			return 0, storageErr("advancing item sequence", err)
		}
	}

	return newID, nil
}

// GetItem returns an item with its store and tags, or nil if it does not exist.
func GetItem(ctx context.Context, d *db.DB, id int64) (*model.Item, error) {
	return getItem(ctx, d, id)
}

func getItem(ctx context.Context, q db.Querier, id int64) (*model.Item, error) {
	item := &model.Item{}
	err := q.QueryRowContext(ctx,
		`SELECT id, name, price, store_id FROM items WHERE id = ?`, id,
	).Scan(&item.ID, &item.Name, &item.Price, &item.StoreID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("getting item", err)
	}

	item.Store, err = getStoreRef(ctx, q, item.StoreID)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT t.id, t.name FROM tags t
		 JOIN item_tag it ON it.tag_id = t.id
		 WHERE it.item_id = ? ORDER BY t.id`, id,
	)
	if err != nil {
		return nil, storageErr("getting item tags", err)
	}
	defer rows.Close()

	item.Tags = []model.TagRef{}
	for rows.Next() {
		var tg model.TagRef
		if err := rows.Scan(&tg.ID, &tg.Name); err != nil {
			return nil, storageErr("scanning item tag", err)
		}
		item.Tags = append(item.Tags, tg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("getting item tags", err)
	}
	return item, nil
}

// ListItems returns all items with their stores and tags.
func ListItems(ctx context.Context, d *db.DB) ([]model.Item, error) {
	rows, err := d.QueryContext(ctx,
		`SELECT i.id, i.name, i.price, i.store_id, s.name
		 FROM items i JOIN stores s ON s.id = i.store_id
		 ORDER BY i.id`,
	)
	if err != nil {
		return nil, storageErr("listing items", err)
	}

	var items []model.Item
	index := make(map[int64]int)
	for rows.Next() {
		var item model.Item
		store := &model.StoreRef{}
		if err := rows.Scan(&item.ID, &item.Name, &item.Price, &item.StoreID, &store.Name); err != nil {
			rows.Close()
			return nil, storageErr("scanning item", err)
		}
		store.ID = item.StoreID
		item.Store = store
		item.Tags = []model.TagRef{}
		index[item.ID] = len(items)
		items = append(items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storageErr("listing items", err)
	}

	links, err := d.QueryContext(ctx,
		`SELECT it.item_id, t.id, t.name FROM item_tag it
		 JOIN tags t ON t.id = it.tag_id ORDER BY t.id`,
	)
	if err != nil {
		return nil, storageErr("listing item tags", err)
	}
	defer links.Close()

	for links.Next() {
		var itemID int64
		var tg model.TagRef
		if err := links.Scan(&itemID, &tg.ID, &tg.Name); err != nil {
			return nil, storageErr("scanning item tag", err)
		}
		if i, ok := index[itemID]; ok {
			items[i].Tags = append(items[i].Tags, tg)
		}
	}
	if err := links.Err(); err != nil {
		return nil, storageErr("listing item tags", err)
	}
	return items, nil
}

// DeleteItem removes an item and its tag links.
func DeleteItem(ctx context.Context, d *db.DB, id int64) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("beginning transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM item_tag WHERE item_id = ?`, id); err != nil {
		return storageErr("deleting item tags", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return storageErr("deleting item", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storageErr("deleting item", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}

	if err := tx.Commit(); err != nil {
		return storageErr("committing item deletion", err)
	}
	return nil
}
