package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/erazemk/storesapi/internal/auth"
	"github.com/erazemk/storesapi/internal/db"
	"github.com/erazemk/storesapi/internal/observability"
	"github.com/erazemk/storesapi/internal/revocation"
	"github.com/erazemk/storesapi/internal/store"
)

// enqueueTimeout bounds how long registration waits on the email queue.
const enqueueTimeout = 2 * time.Second

// AuthHandler handles registration and token endpoints.
type AuthHandler struct {
	DB          *db.DB
	Tokens      *auth.TokenService
	Revocations revocation.Registry
	Notifier    Notifier
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 80)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Register handles POST /register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.RegisterUser(r.Context(), h.DB, req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrUserAlreadyExists) {
			writeError(w, r, err)
			return
		}
		slog.Error("failed to register user", "user", req.Username, "error", err)
		observability.CaptureError(err, map[string]string{"handler": "register"})
		jsonError(w, http.StatusBadRequest, "registration_failed", "Could not create user.")
		return
	}

	slog.Info("user registered", "user", user.Username, "id", user.ID)
	h.notifyRegistered(r.Context(), user.Email, user.Username)

	jsonMessage(w, http.StatusCreated, "User created successfully.")
}

// notifyRegistered queues the welcome email. Failures are reported but do not
// fail the registration.
func (h *AuthHandler) notifyRegistered(ctx context.Context, email, username string) {
	if h.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	if err := h.Notifier.SendRegistrationEmail(ctx, email, username); err != nil {
		slog.Error("failed to queue registration email", "user", username, "error", err)
		observability.CaptureError(err, map[string]string{"component": "notify"})
	}
}

// Login handles POST /login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.GetUserByUsername(r.Context(), h.DB, req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !store.CheckPassword(user, req.Password) {
		slog.Warn("login failed", "username", req.Username, "remote", remoteHost(r))
		writeError(w, r, errInvalidCredentials)
		return
	}

	access, err := h.Tokens.IssueAccessToken(r.Context(), user.ID, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	refresh, err := h.Tokens.IssueRefreshToken(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user logged in", "user", user.Username)
	jsonResponse(w, http.StatusOK, tokenResponse{AccessToken: access, RefreshToken: refresh})
}

// Logout handles POST /logout by revoking the presented access token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		writeError(w, r, auth.ErrAuthorizationRequired)
		return
	}

	if _, err := h.Revocations.Revoke(r.Context(), claims.ID, claims.ExpiresAtTime()); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user logged out", "user_id", claims.UserID())
	jsonMessage(w, http.StatusOK, "You have been logged out.")
}

// Refresh handles POST /refresh. It issues a non-fresh access token and then
// revokes the refresh token so it cannot be used again. When a concurrent
// request has already revoked the token, the issued token is discarded.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		writeError(w, r, auth.ErrAuthorizationRequired)
		return
	}

	access, err := h.Tokens.IssueAccessToken(r.Context(), claims.UserID(), false)
	if err != nil {
		writeError(w, r, err)
		return
	}

	revoked, err := h.Revocations.Revoke(r.Context(), claims.ID, claims.ExpiresAtTime())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !revoked {
		writeError(w, r, auth.ErrTokenRevoked)
		return
	}

	jsonResponse(w, http.StatusOK, tokenResponse{AccessToken: access})
}
