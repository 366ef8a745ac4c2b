package api

import (
	"context"
	"net/http"
	"time"

	"github.com/erazemk/storesapi/internal/auth"
	"github.com/erazemk/storesapi/internal/db"
	"github.com/erazemk/storesapi/internal/revocation"
)

// Notifier queues user notifications.
type Notifier interface {
	SendRegistrationEmail(ctx context.Context, email, username string) error
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps holds what the handlers need.
type Deps struct {
	DB           *db.DB
	Tokens       *auth.TokenService
	Revocations  revocation.Registry
	Notifier     Notifier
	LoginLimiter *IPRateLimiter
	HealthChecks map[string]HealthCheck
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(deps Deps) http.Handler {
	mux := http.NewServeMux()

	authn := &Authenticator{Guard: &auth.Guard{Tokens: deps.Tokens, Blocklist: deps.Revocations}}
	access := authn.Require(auth.Requirement{Type: auth.AccessToken})
	fresh := authn.Require(auth.Requirement{Type: auth.AccessToken, Fresh: true})
	admin := authn.Require(auth.Requirement{Type: auth.AccessToken, Admin: true})
	refresh := authn.Require(auth.Requirement{Type: auth.RefreshToken})

	limiter := deps.LoginLimiter
	if limiter == nil {
		limiter = NewIPRateLimiter(0, 0)
	}

	authHandler := &AuthHandler{DB: deps.DB, Tokens: deps.Tokens, Revocations: deps.Revocations, Notifier: deps.Notifier}
	usersHandler := &UsersHandler{DB: deps.DB}
	itemsHandler := &ItemsHandler{DB: deps.DB}
	storesHandler := &StoresHandler{DB: deps.DB}
	tagsHandler := &TagsHandler{DB: deps.DB}
	healthHandler := &HealthHandler{Checks: deps.HealthChecks}

	// Users and sessions.
	mux.HandleFunc("POST /register", authHandler.Register)
	mux.Handle("POST /login", limiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /logout", access(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("POST /refresh", refresh(http.HandlerFunc(authHandler.Refresh)))
	mux.HandleFunc("GET /user/{id}", usersHandler.Get)
	mux.HandleFunc("DELETE /user/{id}", usersHandler.Delete)

	// Items.
	mux.HandleFunc("GET /item", itemsHandler.List)
	mux.Handle("POST /item", fresh(http.HandlerFunc(itemsHandler.Create)))
	mux.HandleFunc("GET /item/{id}", itemsHandler.Get)
	mux.HandleFunc("PUT /item/{id}", itemsHandler.Update)
	mux.Handle("DELETE /item/{id}", admin(http.HandlerFunc(itemsHandler.Delete)))

	// Stores.
	mux.HandleFunc("GET /store", storesHandler.List)
	mux.HandleFunc("POST /store", storesHandler.Create)
	mux.HandleFunc("GET /store/{id}", storesHandler.Get)
	mux.Handle("DELETE /store/{id}", admin(http.HandlerFunc(storesHandler.Delete)))

	// Tags.
	mux.HandleFunc("GET /store/{id}/tag", tagsHandler.ListForStore)
	mux.HandleFunc("POST /store/{id}/tag", tagsHandler.Create)
	mux.HandleFunc("GET /tag/{id}", tagsHandler.Get)
	mux.HandleFunc("DELETE /tag/{id}", tagsHandler.Delete)
	mux.HandleFunc("POST /item/{item_id}/tag/{tag_id}", tagsHandler.Link)
	mux.HandleFunc("DELETE /item/{item_id}/tag/{tag_id}", tagsHandler.Unlink)

	mux.HandleFunc("GET /health", healthHandler.Check)

	return mux
}

// HealthHandler reports dependency health.
type HealthHandler struct {
	Checks map[string]HealthCheck
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.Checks))
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	jsonResponse(w, status, map[string]any{"status": state, "checks": results})
}
