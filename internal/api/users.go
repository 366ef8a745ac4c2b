package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/storesapi/internal/db"
	"github.com/erazemk/storesapi/internal/store"
)

// UsersHandler handles user lookup and deletion.
type UsersHandler struct {
	DB *db.DB
}

// Get handles GET /user/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, r, store.ErrUserNotFound)
		return
	}

	jsonResponse(w, http.StatusOK, user)
}

// Delete handles DELETE /user/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user deleted", "id", id)
	jsonMessage(w, http.StatusOK, "User deleted successfully.")
}
