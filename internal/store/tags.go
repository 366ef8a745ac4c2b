package store

import (
	"context"
	"database/sql"

	"github.com/erazemk/storesapi/internal/db"
	"github.com/erazemk/storesapi/internal/model"
)

// CreateTag creates a tag in an existing store.
func CreateTag(ctx context.Context, d *db.DB, storeID int64, name string) (*model.Tag, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("beginning transaction", err)
	}
	defer tx.Rollback()

	ok, err := storeExists(ctx, tx, storeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStoreNotFound
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO tags (name, store_id) VALUES (?, ?) RETURNING id`, name, storeID,
	).Scan(&id)
	switch {
	case db.IsUniqueViolation(err):
		return nil, ErrTagAlreadyExists
	case db.IsForeignKeyViolation(err):
		return nil, ErrStoreNotFound
	case err != nil:
		return nil, storageErr("creating tag", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("committing tag", err)
	}

	return GetTag(ctx, d, id)
}

// GetTag returns a tag with its store and items, or nil if it does not exist.
func GetTag(ctx context.Context, d *db.DB, id int64) (*model.Tag, error) {
	return getTag(ctx, d, id)
}

func getTag(ctx context.Context, q db.Querier, id int64) (*model.Tag, error) {
	tag := &model.Tag{}
	err := q.QueryRowContext(ctx,
		`SELECT id, name, store_id FROM tags WHERE id = ?`, id,
	).Scan(&tag.ID, &tag.Name, &tag.StoreID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("getting tag", err)
	}

	tag.Store, err = getStoreRef(ctx, q, tag.StoreID)
	if err != nil {
		return nil, err
	}

	items, err := listItemRefs(ctx, q,
		`SELECT i.id, i.name, i.price, i.store_id FROM items i
		 JOIN item_tag it ON it.item_id = i.id
		 WHERE it.tag_id = ? ORDER BY i.id`, id,
	)
	if err != nil {
		return nil, err
	}
	tag.Items = refsFor(items, tag.StoreID)
	return tag, nil
}

// ListStoreTags returns the tags of a store.
func ListStoreTags(ctx context.Context, d *db.DB, storeID int64) ([]model.Tag, error) {
	store, err := getStoreRef(ctx, d, storeID)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, ErrStoreNotFound
	}

	refs, err := listTagRefs(ctx, d, `SELECT id, name, store_id FROM tags WHERE store_id = ? ORDER BY id`, storeID)
	if err != nil {
		return nil, err
	}

	tags := make([]model.Tag, 0, len(refs))
	for _, ref := range refs {
		tag, err := getTag(ctx, d, ref.ID)
		if err != nil {
			return nil, err
		}
		if tag != nil {
			tags = append(tags, *tag)
		}
	}
	return tags, nil
}

// DeleteTag removes a tag that is not linked to any item.
func DeleteTag(ctx context.Context, d *db.DB, id int64) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("beginning transaction", err)
	}
	defer tx.Rollback()

	var links int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM item_tag WHERE tag_id = ?`, id).Scan(&links)
	if err != nil {
		return storageErr("checking tag links", err)
	}
	if links > 0 {
		return ErrTagInUse
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return storageErr("deleting tag", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storageErr("deleting tag", err)
	}
	if n == 0 {
		return ErrTagNotFound
	}

	if err := tx.Commit(); err != nil {
		return storageErr("committing tag deletion", err)
	}
	return nil
}

// LinkTag attaches a tag to an item of the same store. Linking twice is a no-op.
func LinkTag(ctx context.Context, d *db.DB, itemID, tagID int64) (*model.Tag, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("beginning transaction", err)
	}
	defer tx.Rollback()

	itemStore, tagStore, err := linkStores(ctx, tx, itemID, tagID)
	if err != nil {
		return nil, err
	}
	if itemStore != tagStore {
		return nil, ErrStoreMismatch
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO item_tag (item_id, tag_id) VALUES (?, ?) ON CONFLICT (item_id, tag_id) DO NOTHING`,
		itemID, tagID,
	)
	if err != nil {
		return nil, storageErr("linking tag", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("committing tag link", err)
	}

	return GetTag(ctx, d, tagID)
}

// UnlinkTag detaches a tag from an item and returns both after the change.
func UnlinkTag(ctx context.Context, d *db.DB, itemID, tagID int64) (*model.Item, *model.Tag, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, storageErr("beginning transaction", err)
	}
	defer tx.Rollback()

	if _, _, err := linkStores(ctx, tx, itemID, tagID); err != nil {
		return nil, nil, err
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM item_tag WHERE item_id = ? AND tag_id = ?`, itemID, tagID,
	)
	if err != nil {
		return nil, nil, storageErr("unlinking tag", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, nil, storageErr("unlinking tag", err)
	}
	if n == 0 {
		return nil, nil, ErrLinkNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, storageErr("committing tag unlink", err)
	}

	item, err := GetItem(ctx, d, itemID)
	if err != nil {
		return nil, nil, err
	}
	tag, err := GetTag(ctx, d, tagID)
	if err != nil {
		return nil, nil, err
	}
	return item, tag, nil
}

// linkStores returns the store ids of an item and a tag, failing when either
// does not exist.
func linkStores(ctx context.Context, q db.Querier, itemID, tagID int64) (int64, int64, error) {
	var itemStore, tagStore int64
	err := q.QueryRowContext(ctx, `SELECT store_id FROM items WHERE id = ?`, itemID).Scan(&itemStore)
	if err == sql.ErrNoRows {
		return 0, 0, ErrItemNotFound
	}
	if err != nil {
		return 0, 0, storageErr("getting item", err)
	}

	err = q.QueryRowContext(ctx, `SELECT store_id FROM tags WHERE id = ?`, tagID).Scan(&tagStore)
	if err == sql.ErrNoRows {
		return 0, 0, ErrTagNotFound
	}
	if err != nil {
		return 0, 0, storageErr("getting tag", err)
	}
	return itemStore, tagStore, nil
}
