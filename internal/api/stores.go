package api

import (
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/erazemk/storesapi/internal/db"
	"github.com/erazemk/storesapi/internal/model"
	"github.com/erazemk/storesapi/internal/store"
)

// StoresHandler handles store endpoints.
type StoresHandler struct {
	DB *db.DB
}

type nameRequest struct {
	Name string `json:"name"`
}

func (r nameRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 80)),
	)
}

// List handles GET /store.
func (h *StoresHandler) List(w http.ResponseWriter, r *http.Request) {
	stores, err := store.ListStores(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if stores == nil {
		stores = []model.Store{}
	}
	jsonResponse(w, http.StatusOK, stores)
}

// Create handles POST /store.
func (h *StoresHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	s, err := store.CreateStore(r.Context(), h.DB, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("store created", "id", s.ID, "name", s.Name)
	jsonResponse(w, http.StatusCreated, s)
}

// Get handles GET /store/{id}.
func (h *StoresHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	s, err := store.GetStore(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s == nil {
		writeError(w, r, store.ErrStoreNotFound)
		return
	}

	jsonResponse(w, http.StatusOK, s)
}

// Delete handles DELETE /store/{id}.
func (h *StoresHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.DeleteStore(r.Context(), h.DB, id); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("store deleted", "id", id)
	jsonMessage(w, http.StatusOK, "Store deleted.")
}
