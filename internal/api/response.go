package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/erazemk/storesapi/internal/auth"
	"github.com/erazemk/storesapi/internal/observability"
	"github.com/erazemk/storesapi/internal/store"
)

// Request-level failures that do not come from a lower layer.
var (
	errInvalidBody        = errors.New("invalid request body")
	errInvalidID          = errors.New("invalid id")
	errInvalidCredentials = errors.New("invalid credentials")
	errRateLimited        = errors.New("rate limited")
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"errors,omitempty"`
}

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// errorTable is checked in order with errors.Is. Entity-specific not-found
// errors come before store.ErrNotFound, which they wrap.
var errorTable = []errorMapping{
	{auth.ErrAuthorizationRequired, http.StatusUnauthorized, "authorization_required", "Missing token."},
	{auth.ErrExpiredToken, http.StatusUnauthorized, "token_expired", "The token has expired."},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "The token is invalid."},
	{auth.ErrTokenRevoked, http.StatusUnauthorized, "token_revoked", "The token has been revoked."},
	{auth.ErrFreshTokenRequired, http.StatusUnauthorized, "fresh_token_required", "The token is not fresh."},
	{auth.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "Not authorized. Access Denied."},
	{errInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials."},
	{errRateLimited, http.StatusTooManyRequests, "rate_limited", "Too many login attempts."},

	{store.ErrStoreNotFound, http.StatusNotFound, "store_not_found", "Store not found."},
	{store.ErrItemNotFound, http.StatusNotFound, "not_found", "Item not found."},
	{store.ErrTagNotFound, http.StatusNotFound, "not_found", "Tag not found."},
	{store.ErrUserNotFound, http.StatusNotFound, "not_found", "User not found."},
	{store.ErrLinkNotFound, http.StatusNotFound, "not_found", "Item is not linked to that tag."},
	{store.ErrNotFound, http.StatusNotFound, "not_found", "Resource not found."},

	{store.ErrItemAlreadyExists, http.StatusNotFound, "item_already_exists", "Item already exists"},
	{store.ErrUserAlreadyExists, http.StatusConflict, "user_already_exists", "User already exists with that username or email."},
	{store.ErrStoreAlreadyExists, http.StatusConflict, "store_already_exists", "A store with that name already exists."},
	{store.ErrTagAlreadyExists, http.StatusConflict, "tag_already_exists", "A tag with that name already exists in that store."},
	{store.ErrTagInUse, http.StatusBadRequest, "tag_in_use", "Could not delete tag. Make sure tag is not associated with any items, then try again."},
	{store.ErrStoreMismatch, http.StatusBadRequest, "store_mismatch", "Make sure item and tag belong to the same store before linking."},
	{store.ErrIncompleteItem, http.StatusBadRequest, "validation_error", "Name, price and store_id are required to create an item."},

	{errInvalidBody, http.StatusBadRequest, "validation_error", "Invalid request body."},
	{errInvalidID, http.StatusBadRequest, "validation_error", "Invalid id."},
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonMessage writes {"message": msg}.
func jsonMessage(w http.ResponseWriter, status int, msg string) {
	jsonResponse(w, status, map[string]string{"message": msg})
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, code, message string) {
	jsonResponse(w, status, errorBody{Code: code, Message: message})
}

// resolveError maps err to a status and body. Unknown errors are storage errors.
func resolveError(err error) (int, errorBody) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for name, ferr := range verrs {
			fields[name] = ferr.Error()
		}
		return http.StatusBadRequest, errorBody{Code: "validation_error", Message: verrs.Error(), Fields: fields}
	}

	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, errorBody{Code: m.code, Message: m.message}
		}
	}

	return http.StatusInternalServerError, errorBody{
		Code:    "storage_error",
		Message: "A database error occurred while processing the request.",
	}
}

// writeError writes the response for err. Server-side failures are logged
// and reported.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := resolveError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		observability.CaptureError(err, map[string]string{"method": r.Method, "path": r.URL.Path})
	}
	jsonResponse(w, status, body)
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return errInvalidBody
	}
	return nil
}

// pathID parses a numeric path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}
