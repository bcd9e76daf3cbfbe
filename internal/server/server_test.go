package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panchalshubham0608/securekey/internal/app"
	"github.com/panchalshubham0608/securekey/internal/auth"
	"github.com/panchalshubham0608/securekey/internal/ceremony"
	"github.com/panchalshubham0608/securekey/internal/config"
	"github.com/panchalshubham0608/securekey/internal/crypto"
	"github.com/panchalshubham0608/securekey/internal/migration"
	"github.com/panchalshubham0608/securekey/internal/storage"
	"github.com/panchalshubham0608/securekey/internal/vault"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	t     *testing.T
	app   *app.App
	srv   *Server
	clock *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.KDF.Iterations = 1000
	cfg.Device.Path = filepath.Join(t.TempDir(), "device.db")
	a, err := app.New(context.Background(), cfg, app.Options{
		PasswordArgon: auth.ArgonParams{Memory: 1024, Time: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32},
		PINArgon:      ceremony.ArgonParams{Time: 1, Memory: 1024, Threads: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	c := &clock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	s, err := New(a, Options{Now: c.Now})
	require.NoError(t, err)
	t.Cleanup(s.lockAll)
	return &harness{t: t, app: a, srv: s, clock: c}
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (h *harness) signup(email, password string) auth.LoginResponse {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/signup", "", credentialsReq{Email: email, Password: password})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[auth.LoginResponse](h.t, rec)
}

func TestHealthAndAuthRequired(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = h.do(http.MethodGet, "/api/items", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodOptions, "/api/items", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestItemLifecycle(t *testing.T) {
	h := newHarness(t)
	tok := h.signup("alice@example.com", "Secr3t!").Token

	rec := h.do(http.MethodPost, "/api/items", tok, itemReq{Account: "github.com", Username: "alice", Password: "gh-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[map[string]string](t, rec)["id"]

	rec = h.do(http.MethodPost, "/api/items", tok, itemReq{Account: "github.com", Username: "alice", Password: "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate", decode[errorResp](t, rec).Kind)

	rec = h.do(http.MethodPost, "/api/items", tok, itemReq{Account: "", Username: "alice", Password: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/items", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]vault.Item](t, rec)
	require.Len(t, list, 1)
	assert.NotContains(t, rec.Body.String(), "gh-1")

	rec = h.do(http.MethodGet, "/api/items/"+id, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[itemResp](t, rec).Password)

	rec = h.do(http.MethodGet, "/api/items/"+id+"?reveal=true", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gh-1", decode[itemResp](t, rec).Password)

	rec = h.do(http.MethodPut, "/api/items/"+id, tok, passwordReq{Password: "gh-2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/items/lookup?account=github.com&username=alice", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gh-2", decode[map[string]string](t, rec)["password"])

	rec = h.do(http.MethodGet, "/api/items/"+id+"/history", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode[[]vault.PasswordVersion](t, rec)
	require.Len(t, hist, 1)
	assert.Equal(t, "gh-1", hist[0].Password)

	rec = h.do(http.MethodDelete, "/api/items/"+id, tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(http.MethodGet, "/api/items/"+id, tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLockAndUnlock(t *testing.T) {
	h := newHarness(t)
	tok := h.signup("alice@example.com", "Secr3t!").Token

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/api/lock", tok, nil).Code)
	assert.Equal(t, http.StatusLocked, h.do(http.MethodGet, "/api/items", tok, nil).Code)

	rec := h.do(http.MethodGet, "/api/session", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[sessionResp](t, rec).Unlocked)

	rec = h.do(http.MethodPost, "/api/unlock", tok, unlockReq{Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/api/unlock", tok, unlockReq{Password: "Secr3t!"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/items", tok, nil).Code)
}

func TestIdleSessionLocks(t *testing.T) {
	h := newHarness(t)
	tok := h.signup("alice@example.com", "Secr3t!").Token

	h.clock.advance(4 * time.Minute)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/items", tok, nil).Code)
	h.clock.advance(4 * time.Minute)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/items", tok, nil).Code, "activity resets the timer")
	h.clock.advance(6 * time.Minute)
	assert.Equal(t, http.StatusLocked, h.do(http.MethodGet, "/api/items", tok, nil).Code)
}

func TestLoginLogout(t *testing.T) {
	h := newHarness(t)
	first := h.signup("alice@example.com", "Secr3t!")

	rec := h.do(http.MethodPost, "/api/login", "", credentialsReq{Email: "alice@example.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(http.MethodPost, "/api/login", "", credentialsReq{Email: "nobody@example.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/api/login", "", credentialsReq{Email: "Alice@Example.com", Password: "Secr3t!"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[auth.LoginResponse](t, rec)
	assert.Equal(t, first.UID, login.UID)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/api/logout", login.Token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/session", login.Token, nil).Code)
	// The first token is still valid but the vault is locked.
	assert.Equal(t, http.StatusLocked, h.do(http.MethodGet, "/api/items", first.Token, nil).Code)
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t)
	var last int
	for i := 0; i < 7; i++ {
		last = h.do(http.MethodPost, "/api/login", "", credentialsReq{Email: "alice@example.com", Password: "x"}).Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestQuickUnlockEndpoints(t *testing.T) {
	h := newHarness(t)
	tok := h.signup("alice@example.com", "Secr3t!").Token

	rec := h.do(http.MethodGet, "/api/quick-unlock", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[quickUnlockStatus](t, rec)
	assert.True(t, st.Supported)
	assert.False(t, st.Enabled)

	rec = h.do(http.MethodPost, "/api/quick-unlock", tok, pinReq{PIN: "2468"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPut, "/api/quick-unlock", tok, pinReq{PIN: "2468"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/api/lock", tok, nil).Code)

	rec = h.do(http.MethodPost, "/api/quick-unlock", tok, pinReq{PIN: "0000"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "platform_auth", decode[errorResp](t, rec).Kind)

	rec = h.do(http.MethodPost, "/api/quick-unlock", tok, pinReq{PIN: "2468"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/items", tok, nil).Code)

	rec = h.do(http.MethodGet, "/api/session", tok, nil)
	assert.True(t, decode[sessionResp](t, rec).QuickUnlock)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/api/quick-unlock", tok, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/api/quick-unlock", tok, nil).Code)
}

func TestQuickUnlockDisableOtherUser(t *testing.T) {
	h := newHarness(t)
	alice := h.signup("alice@example.com", "Secr3t!").Token
	bob := h.signup("bob@example.com", "B0b-pass").Token

	require.Equal(t, http.StatusNoContent, h.do(http.MethodPut, "/api/quick-unlock", alice, pinReq{PIN: "2468"}).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/api/quick-unlock", bob, nil).Code)

	rec := h.do(http.MethodGet, "/api/quick-unlock", alice, nil)
	assert.True(t, decode[quickUnlockStatus](t, rec).Enabled)
}

func TestQuickUnlockEnableOtherUser(t *testing.T) {
	h := newHarness(t)
	alice := h.signup("alice@example.com", "Secr3t!").Token
	bob := h.signup("bob@example.com", "B0b-pass").Token

	require.Equal(t, http.StatusNoContent, h.do(http.MethodPut, "/api/quick-unlock", alice, pinReq{PIN: "2468"}).Code)

	rec := h.do(http.MethodPut, "/api/quick-unlock", bob, pinReq{PIN: "1357"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate", decode[errorResp](t, rec).Kind)

	rec = h.do(http.MethodGet, "/api/quick-unlock", alice, nil)
	assert.True(t, decode[quickUnlockStatus](t, rec).Enabled)
	rec = h.do(http.MethodGet, "/api/quick-unlock", bob, nil)
	assert.False(t, decode[quickUnlockStatus](t, rec).Enabled)

	require.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/api/lock", alice, nil).Code)
	rec = h.do(http.MethodPost, "/api/quick-unlock", alice, pinReq{PIN: "2468"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMigrationAndAudit(t *testing.T) {
	h := newHarness(t)
	login := h.signup("alice@example.com", "N3w-pass")

	env, err := crypto.SealLegacy([]byte("old-gh"), []byte("Old-pass"))
	require.NoError(t, err)
	_, err = h.app.Store.AddLegacy(context.Background(), storage.LegacyItem{
		Owner: login.UID, Account: "github.com", Username: "alice", Password: env.Ciphertext,
	})
	require.NoError(t, err)

	rec := h.do(http.MethodGet, "/api/migration", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[map[string][]migration.Pending](t, rec)["pending"]
	require.Len(t, pending, 1)
	assert.NotContains(t, rec.Body.String(), env.Ciphertext)

	rec = h.do(http.MethodPost, "/api/migration", login.Token, migrateReq{LegacyPassword: "wrong"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(http.MethodPost, "/api/migration", login.Token, migrateReq{LegacyPassword: "Old-pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[migration.Report](t, rec).Migrated)

	rec = h.do(http.MethodGet, "/api/audit", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"verified":true`)
	assert.Contains(t, body, "migration.item")
	assert.NotContains(t, body, "old-gh")
}
