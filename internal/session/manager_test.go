package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopfront/internal/api"
	"shopfront/internal/localstore"
	"shopfront/internal/logging"
	"shopfront/internal/models"
	"shopfront/internal/notify"
	"shopfront/pkg/tokens"
)

type backendCounters struct {
	login, refresh, logout, me int32
}

// newFakeBackend serves just enough of the auth contract for the manager.
func newFakeBackend(t *testing.T, hits *backendCounters) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits.login, 1)
		var req struct{ Email, Password string }
		decodeJSON(t, r, &req)
		if req.Password != "secret" {
			jsonResponse(w, http.StatusUnauthorized, `{"message":"invalid credentials"}`)
			return
		}
		role := "user"
		if req.Email == "admin@shop.test" {
			role = "admin"
		}
		jsonResponse(w, http.StatusOK,
			`{"accessToken":"issued-token","user":{"id":1,"email":"`+req.Email+`","role":"`+role+`","status":"active"}}`)
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits.refresh, 1)
		jsonResponse(w, http.StatusOK, `{"accessToken":"refreshed-token"}`)
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits.logout, 1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits.me, 1)
		jsonResponse(w, http.StatusOK, `{"id":1,"email":"user@shop.test","role":"user","status":"active"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func decodeJSON(t *testing.T, r *http.Request, out any) {
	t.Helper()
	defer r.Body.Close()
	require.NoError(t, json.NewDecoder(r.Body).Decode(out))
}

func jsonResponse(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func newTestManager(t *testing.T, url string) (*Manager, *localstore.Store, *notify.Recorder, *int32) {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	rec := &notify.Recorder{}
	log := logging.New("error")
	client := api.New(url, store, rec, log)
	var navHits int32
	nav := NavigatorFunc(func() { atomic.AddInt32(&navHits, 1) })
	m := New(client, store, rec, nav, log, time.Hour, 30*time.Minute)
	t.Cleanup(m.clearLocal)
	return m, store, rec, &navHits
}

func TestLogin_SetsSessionAndToken(t *testing.T) {
	var hits backendCounters
	srv := newFakeBackend(t, &hits)
	m, store, _, _ := newTestManager(t, srv.URL)

	require.False(t, m.IsAuthenticated())

	user, err := m.Login(context.Background(), "user@shop.test", "secret")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "user@shop.test", user.Email)
	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, "issued-token", store.AccessToken())
}

func TestLogin_InvalidCredentials(t *testing.T) {
	var hits backendCounters
	srv := newFakeBackend(t, &hits)
	m, store, _, _ := newTestManager(t, srv.URL)

	user, err := m.Login(context.Background(), "user@shop.test", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidCredentials)
	assert.Nil(t, user)
	assert.False(t, m.IsAuthenticated())
	assert.Empty(t, store.AccessToken())
}

func TestLogout_ClearsLocalEvenWhenRemoteFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusInternalServerError, `{"message":"boom"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	m, store, _, _ := newTestManager(t, srv.URL)
	require.NoError(t, store.SetAccessToken("tok"))
	m.mu.Lock()
	m.user = &models.User{ID: 1, Role: models.RoleUser}
	m.mu.Unlock()

	m.Logout(context.Background())

	assert.False(t, m.IsAuthenticated())
	assert.Empty(t, store.AccessToken())
}

func TestIsAuthenticated_TracksUser(t *testing.T) {
	var hits backendCounters
	srv := newFakeBackend(t, &hits)
	m, _, _, _ := newTestManager(t, srv.URL)

	assert.False(t, m.IsAuthenticated())
	assert.Nil(t, m.CurrentUser())

	_, err := m.Login(context.Background(), "user@shop.test", "secret")
	require.NoError(t, err)
	assert.True(t, m.IsAuthenticated())
	require.NotNil(t, m.CurrentUser())

	m.clearLocal()
	assert.False(t, m.IsAuthenticated())
	assert.Nil(t, m.CurrentUser())
}

func TestRestoreOnStartup_NoToken(t *testing.T) {
	var hits backendCounters
	srv := newFakeBackend(t, &hits)
	m, _, _, _ := newTestManager(t, srv.URL)

	assert.Nil(t, m.RestoreOnStartup(context.Background()))
	assert.Zero(t, atomic.LoadInt32(&hits.me))
	assert.Zero(t, atomic.LoadInt32(&hits.refresh))
}

func TestRestoreOnStartup_LiveTokenFetchesUser(t *testing.T) {
	var hits backendCounters
	srv := newFakeBackend(t, &hits)
	m, store, _, _ := newTestManager(t, srv.URL)

	live, err := tokens.NewAccessToken("1", "user", "user@shop.test", time.Now().Add(time.Hour), []byte("s"))
	require.NoError(t, err)
	require.NoError(t, store.SetAccessToken(live))

	user := m.RestoreOnStartup(context.Background())
	require.NotNil(t, user)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits.refresh), "live token must not be refreshed")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits.me))
	assert.True(t, m.IsAuthenticated())
}

func TestRestoreOnStartup_ExpiredTokenRefreshesFirst(t *testing.T) {
	var hits backendCounters
	srv := newFakeBackend(t, &hits)
	m, store, _, _ := newTestManager(t, srv.URL)

	stale, err := tokens.NewAccessToken("1", "user", "user@shop.test", time.Now().Add(-time.Hour), []byte("s"))
	require.NoError(t, err)
	require.NoError(t, store.SetAccessToken(stale))

	user := m.RestoreOnStartup(context.Background())
	require.NotNil(t, user)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits.refresh))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits.me))
	assert.Equal(t, "refreshed-token", store.AccessToken())
}

func TestRestoreOnStartup_BackendDownEndsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	m, store, _, _ := newTestManager(t, srv.URL)
	require.NoError(t, store.SetAccessToken("opaque"))

	assert.Nil(t, m.RestoreOnStartup(context.Background()))
	assert.False(t, m.IsAuthenticated())
	assert.Empty(t, store.AccessToken())
}

func TestTick_IdleNonAdminClearsLocallyWithoutNetwork(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	m, store, _, navHits := newTestManager(t, srv.URL)
	require.NoError(t, store.SetAccessToken("tok"))
	m.mu.Lock()
	m.user = &models.User{ID: 1, Role: models.RoleUser}
	m.lastInteraction = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	m.tick(context.Background())

	assert.False(t, m.IsAuthenticated())
	assert.Empty(t, store.AccessToken())
	assert.Zero(t, atomic.LoadInt32(&requests), "idle shopper logout must be purely local")
	assert.Zero(t, atomic.LoadInt32(navHits), "shoppers keep browsing, no navigation")
}

func TestTick_IdleAdminLogsOutRemotelyAndNavigates(t *testing.T) {
	var hits backendCounters
	srv := newFakeBackend(t, &hits)
	m, store, _, navHits := newTestManager(t, srv.URL)

	require.NoError(t, store.SetAccessToken("tok"))
	m.mu.Lock()
	m.user = &models.User{ID: 2, Role: models.RoleAdmin}
	m.lastInteraction = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	m.tick(context.Background())

	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits.logout))
	assert.Equal(t, int32(1), atomic.LoadInt32(navHits))
}

func TestTick_ActiveSessionRefreshes(t *testing.T) {
	var hits backendCounters
	srv := newFakeBackend(t, &hits)
	m, store, _, _ := newTestManager(t, srv.URL)

	require.NoError(t, store.SetAccessToken("tok"))
	m.mu.Lock()
	m.user = &models.User{ID: 1, Role: models.RoleUser}
	m.lastInteraction = time.Now()
	m.mu.Unlock()

	m.tick(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits.refresh))
	assert.True(t, m.IsAuthenticated(), "a successful silent refresh keeps the session")
	assert.Equal(t, "refreshed-token", store.AccessToken())
}

func TestRecordActivity_DefersIdleLogout(t *testing.T) {
	var hits backendCounters
	srv := newFakeBackend(t, &hits)
	m, store, _, _ := newTestManager(t, srv.URL)

	require.NoError(t, store.SetAccessToken("tok"))
	m.mu.Lock()
	m.user = &models.User{ID: 1, Role: models.RoleUser}
	m.lastInteraction = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	m.RecordActivity()
	m.tick(context.Background())

	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits.refresh))
}

func TestSubscribe_FiresOnTransitions(t *testing.T) {
	var hits backendCounters
	srv := newFakeBackend(t, &hits)
	m, _, _, _ := newTestManager(t, srv.URL)

	var fired int32
	m.Subscribe(func() { atomic.AddInt32(&fired, 1) })

	_, err := m.Login(context.Background(), "user@shop.test", "secret")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))

	m.clearLocal()
	assert.Equal(t, int32(2), atomic.LoadInt32(&fired))

	// Clearing an already-empty session is not a transition.
	m.clearLocal()
	assert.Equal(t, int32(2), atomic.LoadInt32(&fired))
}
