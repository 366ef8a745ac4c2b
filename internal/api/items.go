package api

import (
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/erazemk/storesapi/internal/db"
	"github.com/erazemk/storesapi/internal/model"
	"github.com/erazemk/storesapi/internal/store"
)

// ItemsHandler handles item endpoints.
type ItemsHandler struct {
	DB *db.DB
}

type createItemRequest struct {
	Name    string   `json:"name"`
	Price   *float64 `json:"price"`
	StoreID *int64   `json:"store_id"`
}

func (r createItemRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 80)),
		validation.Field(&r.Price, validation.NotNil, validation.Min(0.0)),
		validation.Field(&r.StoreID, validation.NotNil),
	)
}

type updateItemRequest struct {
	Name    *string  `json:"name"`
	Price   *float64 `json:"price"`
	StoreID *int64   `json:"store_id"`
}

func (r updateItemRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 80)),
		validation.Field(&r.Price, validation.Min(0.0)),
	)
}

// List handles GET /item.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := store.ListItems(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /item.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, req.Name, *req.Price, *req.StoreID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("item created", "id", item.ID, "store_id", item.StoreID, "user_id", GetClaims(r.Context()).UserID())
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /item/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if item == nil {
		writeError(w, r, store.ErrItemNotFound)
		return
	}

	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /item/{id}. A missing item is created under the given id.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	item, created, err := store.UpsertItem(r.Context(), h.DB, id, store.ItemUpdate{
		Name:    req.Name,
		Price:   req.Price,
		StoreID: req.StoreID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if created {
		slog.Info("item created by update", "id", item.ID, "store_id", item.StoreID)
	}
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /item/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.DeleteItem(r.Context(), h.DB, id); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("item deleted", "id", id, "user_id", GetClaims(r.Context()).UserID())
	jsonMessage(w, http.StatusOK, "Item deleted.")
}
