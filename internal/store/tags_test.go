package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/storesapi/internal/db"
)

func TestCreateTag(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	s := mustStore(t, database, "Books")

	tag, err := CreateTag(ctx, database, s.ID, "fiction")
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if tag.Store == nil || tag.Store.ID != s.ID {
		t.Errorf("expected store ref, got %+v", tag.Store)
	}

	_, err = CreateTag(ctx, database, s.ID, "fiction")
	if !errors.Is(err, ErrTagAlreadyExists) {
		t.Errorf("expected ErrTagAlreadyExists, got %v", err)
	}

	_, err = CreateTag(ctx, database, 9999, "fiction")
	if !errors.Is(err, ErrStoreNotFound) {
		t.Errorf("expected ErrStoreNotFound, got %v", err)
	}

	tags, err := ListStoreTags(ctx, database, s.ID)
	if err != nil {
		t.Fatalf("ListStoreTags: %v", err)
	}
	if len(tags) != 1 {
		t.Errorf("expected 1 tag, got %d", len(tags))
	}

	_, err = ListStoreTags(ctx, database, 9999)
	if !errors.Is(err, ErrStoreNotFound) {
		t.Errorf("expected ErrStoreNotFound, got %v", err)
	}
}

func TestLinkAndUnlinkTag(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	s := mustStore(t, database, "Music")
	other := mustStore(t, database, "Film")
	item := mustItem(t, database, "Vinyl", 30, s.ID)
	tag, _ := CreateTag(ctx, database, s.ID, "retro")
	foreign, _ := CreateTag(ctx, database, other.ID, "retro")

	linked, err := LinkTag(ctx, database, item.ID, tag.ID)
	if err != nil {
		t.Fatalf("LinkTag: %v", err)
	}
	if len(linked.Items) != 1 || linked.Items[0].ID != item.ID {
		t.Errorf("expected tag to list the item, got %+v", linked.Items)
	}

	// Linking twice is harmless.
	if _, err := LinkTag(ctx, database, item.ID, tag.ID); err != nil {
		t.Fatalf("second LinkTag: %v", err)
	}

	_, err = LinkTag(ctx, database, item.ID, foreign.ID)
	if !errors.Is(err, ErrStoreMismatch) {
		t.Errorf("expected ErrStoreMismatch, got %v", err)
	}

	_, err = LinkTag(ctx, database, 9999, tag.ID)
	if !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}

	err = DeleteTag(ctx, database, tag.ID)
	if !errors.Is(err, ErrTagInUse) {
		t.Errorf("expected ErrTagInUse, got %v", err)
	}

	gotItem, gotTag, err := UnlinkTag(ctx, database, item.ID, tag.ID)
	if err != nil {
		t.Fatalf("UnlinkTag: %v", err)
	}
	if len(gotItem.Tags) != 0 || len(gotTag.Items) != 0 {
		t.Errorf("expected link to be gone, got item %+v tag %+v", gotItem, gotTag)
	}

	_, _, err = UnlinkTag(ctx, database, item.ID, tag.ID)
	if !errors.Is(err, ErrLinkNotFound) {
		t.Errorf("expected ErrLinkNotFound, got %v", err)
	}

	if err := DeleteTag(ctx, database, tag.ID); err != nil {
		t.Fatalf("DeleteTag: %v", err)
	}
	err = DeleteTag(ctx, database, tag.ID)
	if !errors.Is(err, ErrTagNotFound) {
		t.Errorf("expected ErrTagNotFound, got %v", err)
	}
}
