package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/storesapi/internal/auth"
	"github.com/erazemk/storesapi/internal/db"
	"github.com/erazemk/storesapi/internal/model"
	"github.com/erazemk/storesapi/internal/revocation"
	"github.com/erazemk/storesapi/internal/store"
)

const testJWTSecret = "test-secret"

func TestMain(m *testing.M) {
	store.BcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *recordingNotifier) SendRegistrationEmail(_ context.Context, email, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, email)
	return nil
}

func (n *recordingNotifier) emails() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

type testEnv struct {
	server   *httptest.Server
	db       *db.DB
	tokens   *auth.TokenService
	notifier *recordingNotifier
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	return setupTestServerWithAdmins(t)
}

// setupTestServerWithAdmins grants the admin claim to users with the admin
// role and to anyone the extra resolvers accept.
func setupTestServerWithAdmins(t *testing.T, extra ...auth.AdminResolver) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)

	byRole := auth.AdminFunc(func(ctx context.Context, userID int64) (bool, error) {
		return store.IsAdmin(ctx, database, userID)
	})
	tokens := auth.NewTokenService(testJWTSecret, auth.AnyAdmin(append(extra, byRole)...))
	notifier := &recordingNotifier{}

	router := NewRouter(Deps{
		DB:           database,
		Tokens:       tokens,
		Revocations:  revocation.NewMemory(),
		Notifier:     notifier,
		LoginLimiter: NewIPRateLimiter(600, 100),
		HealthChecks: map[string]HealthCheck{
			"database": func(ctx context.Context) error { return database.PingContext(ctx) },
		},
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, db: database, tokens: tokens, notifier: notifier}
}

// do sends a JSON request and decodes the JSON response into a map.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var data []byte
	if body != nil {
		data, _ = json.Marshal(body)
	}

	req, err := http.NewRequest(method, e.server.URL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (e *testEnv) register(t *testing.T, username, email, password string) {
	t.Helper()
	status, body := e.do(t, "POST", "/register", "", map[string]string{
		"username": username, "email": email, "password": password,
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d %v", username, status, body)
	}
}

func (e *testEnv) login(t *testing.T, username, password string) (string, string) {
	t.Helper()
	status, body := e.do(t, "POST", "/login", "", map[string]string{
		"username": username, "password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d %v", username, status, body)
	}
	access, _ := body["access_token"].(string)
	refresh, _ := body["refresh_token"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("login %s: missing tokens in %v", username, body)
	}
	return access, refresh
}

func (e *testEnv) createAdmin(t *testing.T) string {
	t.Helper()
	hash, _ := store.HashPassword("adminpass")
	if _, err := store.CreateUser(context.Background(), e.db, "admin", "admin@x.com", hash, model.RoleAdmin); err != nil {
		t.Fatalf("creating admin: %v", err)
	}
	access, _ := e.login(t, "admin", "adminpass")
	return access
}

func (e *testEnv) createStore(t *testing.T, name string) int64 {
	t.Helper()
	status, body := e.do(t, "POST", "/store", "", map[string]string{"name": name})
	if status != http.StatusCreated {
		t.Fatalf("create store: expected 201, got %d %v", status, body)
	}
	return int64(body["id"].(float64))
}

func expectError(t *testing.T, status int, body map[string]any, wantStatus int, wantCode string) {
	t.Helper()
	if status != wantStatus {
		t.Errorf("expected status %d, got %d %v", wantStatus, status, body)
	}
	if body["error"] != wantCode {
		t.Errorf("expected error code %q, got %v", wantCode, body["error"])
	}
	if msg, _ := body["message"].(string); msg == "" {
		t.Errorf("expected a message in %v", body)
	}
}

func TestRegisterLoginCreateItem(t *testing.T) {
	env := setupTestServer(t)
	storeID := env.createStore(t, "Furniture")

	env.register(t, "alice", "a@x.com", "secret")
	if sent := env.notifier.emails(); len(sent) != 1 || sent[0] != "a@x.com" {
		t.Errorf("expected one registration email, got %v", sent)
	}

	access, _ := env.login(t, "alice", "secret")
	claims, err := env.tokens.Validate(access)
	if err != nil {
		t.Fatalf("validating access token: %v", err)
	}
	if !claims.Fresh || claims.Type != auth.AccessToken {
		t.Errorf("expected fresh access token, got %+v", claims)
	}

	status, body := env.do(t, "POST", "/item", access, map[string]any{
		"name": "Chair", "price": 25.0, "store_id": storeID,
	})
	if status != http.StatusCreated {
		t.Fatalf("create item: expected 201, got %d %v", status, body)
	}
	if body["id"] == nil || body["name"] != "Chair" || body["price"] != 25.0 {
		t.Errorf("unexpected item body: %v", body)
	}
	if s, _ := body["store"].(map[string]any); s["name"] != "Furniture" {
		t.Errorf("expected nested store, got %v", body["store"])
	}
}

func TestRegisterDuplicate(t *testing.T) {
	env := setupTestServer(t)
	env.register(t, "alice", "a@x.com", "secret")

	status, body := env.do(t, "POST", "/register", "", map[string]string{
		"username": "alice", "email": "other@x.com", "password": "secret",
	})
	expectError(t, status, body, http.StatusConflict, "user_already_exists")

	status, body = env.do(t, "POST", "/register", "", map[string]string{
		"username": "bob", "email": "a@x.com", "password": "secret",
	})
	expectError(t, status, body, http.StatusConflict, "user_already_exists")
}

func TestRegisterValidation(t *testing.T) {
	env := setupTestServer(t)

	status, body := env.do(t, "POST", "/register", "", map[string]string{
		"username": "alice", "email": "not-an-email", "password": "secret",
	})
	expectError(t, status, body, http.StatusBadRequest, "validation_error")
	if fields, _ := body["errors"].(map[string]any); fields["email"] == nil {
		t.Errorf("expected email field error, got %v", body["errors"])
	}
}

func TestRegisterSucceedsWhenQueueFails(t *testing.T) {
	env := setupTestServer(t)
	env.notifier.mu.Lock()
	env.notifier.err = errors.New("queue down")
	env.notifier.mu.Unlock()

	env.register(t, "alice", "a@x.com", "secret")
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := setupTestServer(t)
	env.register(t, "alice", "a@x.com", "secret")

	status, body := env.do(t, "POST", "/login", "", map[string]string{"username": "alice", "password": "wrong"})
	expectError(t, status, body, http.StatusUnauthorized, "invalid_credentials")

	status, body = env.do(t, "POST", "/login", "", map[string]string{"username": "nobody", "password": "secret"})
	expectError(t, status, body, http.StatusUnauthorized, "invalid_credentials")
}

func TestLoginRateLimited(t *testing.T) {
	database := db.NewTestDB(t)
	tokens := auth.NewTokenService(testJWTSecret, nil)
	server := httptest.NewServer(NewRouter(Deps{
		DB:           database,
		Tokens:       tokens,
		Revocations:  revocation.NewMemory(),
		LoginLimiter: NewIPRateLimiter(1, 2),
	}))
	t.Cleanup(server.Close)
	env := &testEnv{server: server, db: database, tokens: tokens}

	creds := map[string]string{"username": "x", "password": "y"}
	for i := 0; i < 2; i++ {
		status, _ := env.do(t, "POST", "/login", "", creds)
		if status != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, status)
		}
	}
	status, body := env.do(t, "POST", "/login", "", creds)
	expectError(t, status, body, http.StatusTooManyRequests, "rate_limited")
}

func TestCreateItemAuthErrors(t *testing.T) {
	env := setupTestServer(t)
	storeID := env.createStore(t, "Furniture")
	env.register(t, "alice", "a@x.com", "secret")
	access, refresh := env.login(t, "alice", "secret")
	item := map[string]any{"name": "Chair", "price": 25.0, "store_id": storeID}

	status, body := env.do(t, "POST", "/item", "", item)
	expectError(t, status, body, http.StatusUnauthorized, "authorization_required")

	status, body = env.do(t, "POST", "/item", "garbage", item)
	expectError(t, status, body, http.StatusUnauthorized, "invalid_token")

	status, body = env.do(t, "POST", "/item", refresh, item)
	expectError(t, status, body, http.StatusUnauthorized, "invalid_token")

	stale, err := env.tokens.IssueAccessToken(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	status, body = env.do(t, "POST", "/item", stale, item)
	expectError(t, status, body, http.StatusUnauthorized, "fresh_token_required")

	expired := auth.NewTokenService(testJWTSecret, nil)
	expired.Now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.IssueAccessToken(context.Background(), 1, true)
	status, body = env.do(t, "POST", "/item", old, item)
	expectError(t, status, body, http.StatusUnauthorized, "token_expired")

	status, _ = env.do(t, "POST", "/item", access, item)
	if status != http.StatusCreated {
		t.Errorf("expected 201 with fresh token, got %d", status)
	}
}

func TestCreateItemConflicts(t *testing.T) {
	env := setupTestServer(t)
	first := env.createStore(t, "First")
	second := env.createStore(t, "Second")
	env.register(t, "alice", "a@x.com", "secret")
	access, _ := env.login(t, "alice", "secret")

	status, _ := env.do(t, "POST", "/item", access, map[string]any{"name": "Chair", "price": 10, "store_id": first})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}

	status, body := env.do(t, "POST", "/item", access, map[string]any{"name": "Chair", "price": 12, "store_id": first})
	expectError(t, status, body, http.StatusNotFound, "item_already_exists")

	status, _ = env.do(t, "POST", "/item", access, map[string]any{"name": "Chair", "price": 12, "store_id": second})
	if status != http.StatusCreated {
		t.Errorf("same name in another store: expected 201, got %d", status)
	}

	status, body = env.do(t, "POST", "/item", access, map[string]any{"name": "Desk", "price": 12, "store_id": 999})
	expectError(t, status, body, http.StatusNotFound, "store_not_found")

	status, body = env.do(t, "POST", "/item", access, map[string]any{"name": "Desk", "price": -1, "store_id": first})
	expectError(t, status, body, http.StatusBadRequest, "validation_error")
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestServer(t)
	env.register(t, "alice", "a@x.com", "secret")
	access, _ := env.login(t, "alice", "secret")

	status, body := env.do(t, "POST", "/logout", access, nil)
	if status != http.StatusOK || body["message"] != "You have been logged out." {
		t.Fatalf("logout: got %d %v", status, body)
	}

	status, body = env.do(t, "POST", "/logout", access, nil)
	expectError(t, status, body, http.StatusUnauthorized, "token_revoked")

	status, body = env.do(t, "POST", "/item", access, map[string]any{"name": "Chair", "price": 1, "store_id": 1})
	expectError(t, status, body, http.StatusUnauthorized, "token_revoked")
}

func TestRefreshRotation(t *testing.T) {
	env := setupTestServer(t)
	env.register(t, "alice", "a@x.com", "secret")
	access, refresh := env.login(t, "alice", "secret")

	status, body := env.do(t, "POST", "/refresh", access, nil)
	expectError(t, status, body, http.StatusUnauthorized, "invalid_token")

	status, body = env.do(t, "POST", "/refresh", refresh, nil)
	if status != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d %v", status, body)
	}
	newAccess, _ := body["access_token"].(string)
	claims, err := env.tokens.Validate(newAccess)
	if err != nil {
		t.Fatalf("validating refreshed token: %v", err)
	}
	if claims.Fresh {
		t.Error("refreshed access token must not be fresh")
	}
	if _, ok := body["refresh_token"]; ok {
		t.Error("refresh must not return a refresh token")
	}

	status, body = env.do(t, "POST", "/refresh", refresh, nil)
	expectError(t, status, body, http.StatusUnauthorized, "token_revoked")
}

func TestRefreshTokenSingleUseUnderConcurrency(t *testing.T) {
	env := setupTestServer(t)
	env.register(t, "alice", "a@x.com", "secret")
	_, refresh := env.login(t, "alice", "secret")

	const n = 20
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest("POST", env.server.URL+"/refresh", nil)
			req.Header.Set("Authorization", "Bearer "+refresh)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				codes <- 0
				return
			}
			resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(codes)

	ok := 0
	for code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusUnauthorized:
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one successful refresh, got %d", ok)
	}
}

func TestDeletedAdminIDNotReused(t *testing.T) {
	env := setupTestServerWithAdmins(t, auth.AdminIDs{1: {}})
	env.register(t, "root", "root@x.com", "secret")
	rootAccess, _ := env.login(t, "root", "secret")

	claims, err := env.tokens.Validate(rootAccess)
	if err != nil {
		t.Fatalf("validating root token: %v", err)
	}
	if claims.UserID() != 1 || !claims.IsAdmin {
		t.Fatalf("expected root to be admin user 1, got id=%d admin=%v", claims.UserID(), claims.IsAdmin)
	}

	status, body := env.do(t, "DELETE", "/user/1", "", nil)
	if status != http.StatusOK {
		t.Fatalf("delete user: %d %v", status, body)
	}

	env.register(t, "mallory", "m@x.com", "secret")
	access, _ := env.login(t, "mallory", "secret")
	claims, err = env.tokens.Validate(access)
	if err != nil {
		t.Fatalf("validating token: %v", err)
	}
	if claims.UserID() == 1 {
		t.Error("new user must not inherit the deleted user's id")
	}
	if claims.IsAdmin {
		t.Error("new user must not receive the admin claim")
	}
}

func TestDeleteItemRequiresAdmin(t *testing.T) {
	env := setupTestServer(t)
	adminToken := env.createAdmin(t)
	storeID := env.createStore(t, "Furniture")
	env.register(t, "alice", "a@x.com", "secret")
	userToken, _ := env.login(t, "alice", "secret")

	status, body := env.do(t, "POST", "/item", userToken, map[string]any{"name": "Chair", "price": 1, "store_id": storeID})
	if status != http.StatusCreated {
		t.Fatalf("create item: %d %v", status, body)
	}
	itemPath := "/item/" + jsonID(body)

	status, body = env.do(t, "DELETE", itemPath, userToken, nil)
	expectError(t, status, body, http.StatusUnauthorized, "unauthorized")

	status, body = env.do(t, "DELETE", "/item/999", adminToken, nil)
	expectError(t, status, body, http.StatusNotFound, "not_found")

	status, body = env.do(t, "DELETE", itemPath, adminToken, nil)
	if status != http.StatusOK || body["message"] != "Item deleted." {
		t.Fatalf("delete: got %d %v", status, body)
	}

	status, body = env.do(t, "DELETE", itemPath, adminToken, nil)
	expectError(t, status, body, http.StatusNotFound, "not_found")
}

func TestUpdateItemUpsert(t *testing.T) {
	env := setupTestServer(t)
	storeID := env.createStore(t, "Furniture")

	status, body := env.do(t, "PUT", "/item/42", "", map[string]any{"name": "Lamp", "price": 9.5, "store_id": storeID})
	if status != http.StatusOK {
		t.Fatalf("upsert create: expected 200, got %d %v", status, body)
	}
	if jsonID(body) != "42" {
		t.Errorf("expected id 42, got %v", body["id"])
	}

	status, body = env.do(t, "PUT", "/item/42", "", map[string]any{"price": 11.0})
	if status != http.StatusOK {
		t.Fatalf("upsert update: expected 200, got %d %v", status, body)
	}
	if jsonID(body) != "42" || body["name"] != "Lamp" || body["price"] != 11.0 {
		t.Errorf("unexpected updated item: %v", body)
	}

	status, body = env.do(t, "PUT", "/item/43", "", map[string]any{"name": "Rug"})
	expectError(t, status, body, http.StatusBadRequest, "validation_error")

	status, body = env.do(t, "GET", "/item/42", "", nil)
	if status != http.StatusOK || body["name"] != "Lamp" {
		t.Errorf("get item: %d %v", status, body)
	}
}

func TestUsersEndpoints(t *testing.T) {
	env := setupTestServer(t)
	env.register(t, "alice", "a@x.com", "secret")

	status, body := env.do(t, "GET", "/user/1", "", nil)
	if status != http.StatusOK || body["username"] != "alice" {
		t.Fatalf("get user: %d %v", status, body)
	}
	if _, ok := body["password_hash"]; ok {
		t.Error("password hash must not be serialized")
	}

	status, body = env.do(t, "DELETE", "/user/1", "", nil)
	if status != http.StatusOK || body["message"] != "User deleted successfully." {
		t.Fatalf("delete user: %d %v", status, body)
	}

	status, body = env.do(t, "GET", "/user/1", "", nil)
	expectError(t, status, body, http.StatusNotFound, "not_found")

	status, body = env.do(t, "DELETE", "/user/1", "", nil)
	expectError(t, status, body, http.StatusNotFound, "not_found")

	status, body = env.do(t, "GET", "/user/abc", "", nil)
	expectError(t, status, body, http.StatusBadRequest, "validation_error")
}

func TestStoreAndTagFlow(t *testing.T) {
	env := setupTestServer(t)
	adminToken := env.createAdmin(t)
	env.register(t, "alice", "a@x.com", "secret")
	access, _ := env.login(t, "alice", "secret")

	storeID := env.createStore(t, "Garden")
	status, body := env.do(t, "POST", "/store", "", map[string]string{"name": "Garden"})
	expectError(t, status, body, http.StatusConflict, "store_already_exists")

	storePath := "/store/" + strconv.FormatInt(storeID, 10)
	status, body = env.do(t, "POST", storePath+"/tag", "", map[string]string{"name": "outdoor"})
	if status != http.StatusCreated {
		t.Fatalf("create tag: %d %v", status, body)
	}
	tagID := jsonID(body)

	status, body = env.do(t, "POST", "/item", access, map[string]any{"name": "Hose", "price": 20, "store_id": storeID})
	if status != http.StatusCreated {
		t.Fatalf("create item: %d %v", status, body)
	}
	itemID := jsonID(body)

	status, body = env.do(t, "POST", "/item/"+itemID+"/tag/"+tagID, "", nil)
	if status != http.StatusCreated {
		t.Fatalf("link: %d %v", status, body)
	}
	if items, _ := body["items"].([]any); len(items) != 1 {
		t.Errorf("expected tag with one item, got %v", body["items"])
	}

	status, body = env.do(t, "DELETE", "/tag/"+tagID, "", nil)
	expectError(t, status, body, http.StatusBadRequest, "tag_in_use")

	status, body = env.do(t, "DELETE", "/item/"+itemID+"/tag/"+tagID, "", nil)
	if status != http.StatusOK || body["message"] != "Item removed from tag" {
		t.Fatalf("unlink: %d %v", status, body)
	}
	if body["item"] == nil || body["tag"] == nil {
		t.Errorf("unlink body missing item or tag: %v", body)
	}

	status, body = env.do(t, "DELETE", "/tag/"+tagID, "", nil)
	if status != http.StatusAccepted || body["message"] != "Tag deleted." {
		t.Fatalf("delete tag: %d %v", status, body)
	}

	status, body = env.do(t, "DELETE", storePath, access, nil)
	expectError(t, status, body, http.StatusUnauthorized, "unauthorized")

	status, body = env.do(t, "DELETE", storePath, adminToken, nil)
	if status != http.StatusOK || body["message"] != "Store deleted." {
		t.Fatalf("delete store: %d %v", status, body)
	}

	status, body = env.do(t, "GET", "/item/"+itemID, "", nil)
	expectError(t, status, body, http.StatusNotFound, "not_found")
}

func TestListEndpointsReturnArrays(t *testing.T) {
	env := setupTestServer(t)

	for _, path := range []string{"/item", "/store"} {
		resp, err := http.Get(env.server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		var list []any
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			t.Errorf("GET %s: expected JSON array: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || list == nil {
			t.Errorf("GET %s: got %d %v", path, resp.StatusCode, list)
		}
	}
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)

	status, body := env.do(t, "GET", "/health", "", nil)
	if status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health: %d %v", status, body)
	}

	env.db.Close()
	status, body = env.do(t, "GET", "/health", "", nil)
	if status != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Errorf("health after close: %d %v", status, body)
	}
}

func jsonID(body map[string]any) string {
	id, _ := body["id"].(float64)
	return strconv.FormatInt(int64(id), 10)
}
