package api

import (
	"net/http"

	"github.com/erazemk/storesapi/internal/db"
	"github.com/erazemk/storesapi/internal/model"
	"github.com/erazemk/storesapi/internal/store"
)

// TagsHandler handles tag endpoints and item-tag links.
type TagsHandler struct {
	DB *db.DB
}

// ListForStore handles GET /store/{id}/tag.
func (h *TagsHandler) ListForStore(w http.ResponseWriter, r *http.Request) {
	storeID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	tags, err := store.ListStoreTags(r.Context(), h.DB, storeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tags == nil {
		tags = []model.Tag{}
	}
	jsonResponse(w, http.StatusOK, tags)
}

// Create handles POST /store/{id}/tag.
func (h *TagsHandler) Create(w http.ResponseWriter, r *http.Request) {
	storeID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	tag, err := store.CreateTag(r.Context(), h.DB, storeID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, tag)
}

// Get handles GET /tag/{id}.
func (h *TagsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	tag, err := store.GetTag(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tag == nil {
		writeError(w, r, store.ErrTagNotFound)
		return
	}
	jsonResponse(w, http.StatusOK, tag)
}

// Delete handles DELETE /tag/{id}. Tags still linked to items are kept.
func (h *TagsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.DeleteTag(r.Context(), h.DB, id); err != nil {
		writeError(w, r, err)
		return
	}
	jsonMessage(w, http.StatusAccepted, "Tag deleted.")
}

// Link handles POST /item/{item_id}/tag/{tag_id}.
func (h *TagsHandler) Link(w http.ResponseWriter, r *http.Request) {
	itemID, tagID, ok := h.linkIDs(w, r)
	if !ok {
		return
	}

	tag, err := store.LinkTag(r.Context(), h.DB, itemID, tagID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, tag)
}

// Unlink handles DELETE /item/{item_id}/tag/{tag_id}.
func (h *TagsHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	itemID, tagID, ok := h.linkIDs(w, r)
	if !ok {
		return
	}

	item, tag, err := store.UnlinkTag(r.Context(), h.DB, itemID, tagID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "Item removed from tag",
		"item":    item,
		"tag":     tag,
	})
}

func (h *TagsHandler) linkIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	itemID, err := pathID(r, "item_id")
	if err != nil {
		writeError(w, r, err)
		return 0, 0, false
	}
	tagID, err := pathID(r, "tag_id")
	if err != nil {
		writeError(w, r, err)
		return 0, 0, false
	}
	return itemID, tagID, true
}
