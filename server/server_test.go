package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Bt1QMedia/cache"
	"Bt1QMedia/config"
	"Bt1QMedia/core/events"
	"Bt1QMedia/db"
	"Bt1QMedia/repository"
	"Bt1QMedia/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv   *httptest.Server
	store repository.Store
	hub   *events.Hub
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.UploadDir = t.TempDir()
	cfg.MaxContentLength = 64 << 10
	cfg.LoginRateLimit = 0
	return cfg
}

func newTestEnv(t *testing.T, cfg *config.Config, withCache bool) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := repository.NewMemoryStore()
	_, err := db.Seed(ctx, store, db.AdminAccount{Username: "admin", Email: "admin@example.com", Password: "admin123"})
	require.NoError(t, err)

	objects, err := storage.NewLocalStore(cfg.UploadDir)
	require.NoError(t, err)

	hub := events.NewHub()
	go hub.Run(ctx)

	deps := Deps{Store: store, Objects: objects, Hub: hub}
	if withCache {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		deps.Cache = cache.NewCatalogCache(client, time.Minute)
	}

	srv := httptest.NewServer(New(cfg, deps).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, hub: hub}
}

// call sends a JSON request and decodes the JSON response into out (when non-nil).
func (e *testEnv) call(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	var res struct {
		Token string `json:"token"`
	}
	status := e.call(t, http.MethodPost, "/login", "", map[string]string{"username": username, "password": password}, &res)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, res.Token)
	return res.Token
}

func (e *testEnv) registerAndLogin(t *testing.T, username string) string {
	t.Helper()
	status := e.call(t, http.MethodPost, "/register", "", map[string]string{
		"username": username, "email": username + "@x.com", "password": "pw-" + username,
	}, nil)
	require.Equal(t, http.StatusCreated, status)
	return e.login(t, username, "pw-"+username)
}

type message struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	ID      int64  `json:"id"`
}

func TestRoadTripScenario(t *testing.T) {
	env := newTestEnv(t, testConfig(t), false)

	var reg message
	status := env.call(t, http.MethodPost, "/register", "", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "pw1",
	}, &reg)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "User created successfully", reg.Message)
	assert.Positive(t, reg.ID)

	var login struct {
		Token   string `json:"token"`
		UserID  int64  `json:"user_id"`
		IsAdmin bool   `json:"is_admin"`
	}
	status = env.call(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "pw1"}, &login)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, reg.ID, login.UserID)
	assert.False(t, login.IsAdmin)

	var created struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	status = env.call(t, http.MethodPost, "/playlists", login.Token, map[string]string{"name": "Road Trip"}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Road Trip", created.Name)

	var added message
	status = env.call(t, http.MethodPost, fmt.Sprintf("/playlists/%d/tracks", created.ID), login.Token,
		map[string]int64{"track_id": 1}, &added)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Content added to playlist", added.Message)

	var items []map[string]interface{}
	status = env.call(t, http.MethodGet, fmt.Sprintf("/playlists/%d/tracks", created.ID), login.Token, nil, &items)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, items, 1)
	assert.Equal(t, "Sample Song 1", items[0]["title"])
	assert.Equal(t, "Artist 1", items[0]["artist"])
	assert.Equal(t, "track", items[0]["type"])

	var playlists []map[string]interface{}
	status = env.call(t, http.MethodGet, "/playlists", login.Token, nil, &playlists)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, playlists, 1)

	// another user can neither read nor extend alice's playlist
	bob := env.registerAndLogin(t, "bob")
	var denied message
	status = env.call(t, http.MethodGet, fmt.Sprintf("/playlists/%d/tracks", created.ID), bob, nil, &denied)
	assert.Equal(t, http.StatusForbidden, status)
	status = env.call(t, http.MethodPost, fmt.Sprintf("/playlists/%d/tracks", created.ID), bob, map[string]int64{"track_id": 1}, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestRegisterAndLoginErrors(t *testing.T) {
	env := newTestEnv(t, testConfig(t), false)

	var m message
	status := env.call(t, http.MethodPost, "/register", "", map[string]string{"username": "admin", "email": "new@x.com", "password": "p"}, &m)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Username already exists", m.Message)

	status = env.call(t, http.MethodPost, "/register", "", map[string]string{"username": "long", "email": "long@x.com", "password": strings.Repeat("p", 80)}, &m)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Password must be at most 72 bytes", m.Message)

	// usernames may contain '@'
	status = env.call(t, http.MethodPost, "/register", "", map[string]string{"username": "dj@home", "email": "dj@x.com", "password": "pw"}, nil)
	require.Equal(t, http.StatusCreated, status)
	var dj struct {
		Username string `json:"username"`
	}
	status = env.call(t, http.MethodPost, "/login", "", map[string]string{"username": "dj@home", "password": "pw"}, &dj)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "dj@home", dj.Username)

	status = env.call(t, http.MethodPost, "/register", "", map[string]string{"username": "x"}, &m)
	assert.Equal(t, http.StatusBadRequest, status)

	status = env.call(t, http.MethodPost, "/login", "", map[string]string{"username": "admin", "password": "wrong"}, &m)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid credentials", m.Message)

	var admin struct {
		IsAdmin bool `json:"is_admin"`
	}
	status = env.call(t, http.MethodPost, "/login", "", map[string]string{"username": "admin@example.com", "password": "admin123"}, &admin)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, admin.IsAdmin)

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/register", strings.NewReader("{broken"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	env := newTestEnv(t, testConfig(t), false)

	var m message
	status := env.call(t, http.MethodGet, "/playlists", "", nil, &m)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Token is missing", m.Message)

	status = env.call(t, http.MethodGet, "/recently-played", "not-a-token", nil, &m)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid or expired token", m.Message)

	alice := env.registerAndLogin(t, "alice")
	status = env.call(t, http.MethodPost, "/admin/tracks", alice, map[string]string{"title": "t", "artist": "a", "file_path": "f.mp3"}, &m)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Admin access required", m.Message)

	status = env.call(t, http.MethodDelete, "/admin/content/track/1", alice, nil, &m)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestCatalogAdminLifecycle(t *testing.T) {
	env := newTestEnv(t, testConfig(t), true)
	admin := env.login(t, "admin", "admin123")

	var tracks []map[string]interface{}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/tracks", "", nil, &tracks))
	require.Len(t, tracks, 2)
	assert.Equal(t, "track", tracks[0]["type"])

	var podcasts []map[string]interface{}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/podcasts", "", nil, &podcasts))
	require.Len(t, podcasts, 1)
	assert.Equal(t, "podcast", podcasts[0]["type"])
	assert.Equal(t, "Tech Host", podcasts[0]["host"])

	var results []map[string]interface{}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/search?q=tech", "", nil, &results))
	require.Len(t, results, 1)
	assert.Equal(t, "Tech Talk Ep1", results[0]["title"])
	assert.Equal(t, "podcast", results[0]["type"])

	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/search?q=zzz-no-match", "", nil, &results))
	assert.Empty(t, results)

	// upload a file, then register it as a track
	var up struct {
		Message  string `json:"message"`
		FilePath string `json:"file_path"`
		Size     int64  `json:"size"`
	}
	status := env.upload(t, admin, "My Song.MP3", []byte("not really audio"), &up)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "File uploaded", up.Message)
	assert.Equal(t, "my-song.mp3", up.FilePath)
	assert.EqualValues(t, 16, up.Size)

	var addRes struct {
		Message string `json:"message"`
		ID      int64  `json:"id"`
		Type    string `json:"type"`
	}
	status = env.call(t, http.MethodPost, "/admin/tracks", admin, map[string]interface{}{
		"title": "Road Trip", "artist": "The Drivers", "file_path": up.FilePath, "duration": 200,
	}, &addRes)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Content added", addRes.Message)
	assert.Equal(t, "track", addRes.Type)

	// the cached listing was invalidated by the insert
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/tracks", "", nil, &tracks))
	assert.Len(t, tracks, 3)

	resp, err := http.Get(fmt.Sprintf("%s/stream/track/%d", env.srv.URL, addRes.ID))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "not really audio", string(body))

	var podcast struct {
		ID   int64  `json:"id"`
		Type string `json:"type"`
	}
	status = env.call(t, http.MethodPost, "/admin/tracks", admin, map[string]interface{}{
		"title": "Ep2", "artist": "Host", "file_path": "ep2.mp3", "is_podcast": true, "podcast_name": "Show",
	}, &podcast)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "podcast", podcast.Type)

	var m message
	status = env.call(t, http.MethodPost, "/admin/tracks", admin, map[string]interface{}{"title": "no artist"}, &m)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing required fields: title, artist, file_path", m.Message)

	status = env.call(t, http.MethodDelete, fmt.Sprintf("/admin/content/track/%d", addRes.ID), admin, nil, &m)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Content deleted", m.Message)

	status = env.call(t, http.MethodGet, fmt.Sprintf("/stream/track/%d", addRes.ID), "", nil, &m)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Content not found", m.Message)

	status = env.call(t, http.MethodDelete, fmt.Sprintf("/admin/content/track/%d", addRes.ID), admin, nil, &m)
	assert.Equal(t, http.StatusNotFound, status)

	// seeded rows point at files that were never uploaded
	status = env.call(t, http.MethodGet, "/stream/track/1", "", nil, &m)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "File not found", m.Message)

	status = env.call(t, http.MethodGet, "/stream/video/1", "", nil, &m)
	assert.Equal(t, http.StatusNotFound, status)
}

func (e *testEnv) upload(t *testing.T, token, filename string, content []byte, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/admin/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestUploadLimits(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxContentLength = 1024
	env := newTestEnv(t, cfg, false)
	admin := env.login(t, "admin", "admin123")

	var m message
	status := env.upload(t, admin, "big.mp3", bytes.Repeat([]byte("x"), 4096), &m)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, "File too large", m.Message)

	status = env.upload(t, admin, "", []byte("x"), &m)
	assert.Equal(t, http.StatusBadRequest, status)

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/admin/upload", strings.NewReader("plain"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+admin)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No file provided", m.Message)
}

func TestFavoritesOverHTTP(t *testing.T) {
	env := newTestEnv(t, testConfig(t), false)
	alice := env.registerAndLogin(t, "alice")
	aliceUser, err := env.store.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	path := fmt.Sprintf("/favorites/%d", aliceUser.ID)

	var m message
	require.Equal(t, http.StatusOK, env.call(t, http.MethodPost, path, alice, map[string]int64{"track_id": 2}, &m))
	assert.Equal(t, "Added to favorites", m.Message)
	assert.Equal(t, "added", m.Status)

	var favs []map[string]interface{}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, path, alice, nil, &favs))
	require.Len(t, favs, 1)
	assert.Equal(t, "Sample Song 2", favs[0]["title"])

	require.Equal(t, http.StatusOK, env.call(t, http.MethodPost, path, alice, map[string]int64{"track_id": 2}, &m))
	assert.Equal(t, "Removed from favorites", m.Message)

	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, path, alice, nil, &favs))
	assert.Empty(t, favs)

	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodPost, path, alice, map[string]int64{"track_id": 99}, &m))
	assert.Equal(t, http.StatusBadRequest, env.call(t, http.MethodPost, path, alice, map[string]int64{}, &m))

	bob := env.registerAndLogin(t, "bob")
	assert.Equal(t, http.StatusForbidden, env.call(t, http.MethodGet, path, bob, nil, &m))

	admin := env.login(t, "admin", "admin123")
	assert.Equal(t, http.StatusOK, env.call(t, http.MethodGet, path, admin, nil, &favs))
}

func TestRecentlyPlayedOverHTTP(t *testing.T) {
	env := newTestEnv(t, testConfig(t), false)
	alice := env.registerAndLogin(t, "alice")

	for i := 0; i < 15; i++ {
		body := map[string]int64{"track_id": int64(i%2 + 1)}
		if i == 14 {
			body = map[string]int64{"podcast_id": 1}
		}
		var m message
		require.Equal(t, http.StatusOK, env.call(t, http.MethodPost, "/recently-played", alice, body, &m))
		assert.Equal(t, "Recently played updated", m.Message)
	}

	var items []map[string]interface{}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/recently-played", alice, nil, &items))
	require.Len(t, items, 10)
	assert.Equal(t, "podcast", items[0]["type"])
	assert.Equal(t, "Tech Talk Ep1", items[0]["title"])
	assert.Equal(t, "Sample Song 2", items[1]["title"])

	var m message
	assert.Equal(t, http.StatusBadRequest, env.call(t, http.MethodPost, "/recently-played", alice, map[string]int64{}, &m))
	assert.Equal(t, http.StatusBadRequest, env.call(t, http.MethodPost, "/recently-played", alice,
		map[string]int64{"track_id": 1, "podcast_id": 1}, &m))
	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodPost, "/recently-played", alice,
		map[string]int64{"track_id": 404}, &m))
}

func TestLoginRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.LoginRateLimit = 0.001
	cfg.LoginRateBurst = 2
	env := newTestEnv(t, cfg, false)

	creds := map[string]string{"username": "admin", "password": "wrong"}
	assert.Equal(t, http.StatusUnauthorized, env.call(t, http.MethodPost, "/login", "", creds, nil))
	assert.Equal(t, http.StatusUnauthorized, env.call(t, http.MethodPost, "/login", "", creds, nil))

	var m message
	assert.Equal(t, http.StatusTooManyRequests, env.call(t, http.MethodPost, "/login", "", creds, &m))
	assert.Equal(t, "Too many requests", m.Message)

	// forwarded headers do not buy a fresh bucket
	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/login", strings.NewReader(`{"username":"admin","password":"wrong"}`))
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i+1))
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.0.1.%d", i+1))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	}
}

// slowObjects delays Open and fails if the request context has already expired.
type slowObjects struct {
	*storage.LocalStore
	delay time.Duration
}

func (s slowObjects) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	time.Sleep(s.delay)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.LocalStore.Open(ctx, key)
}

func TestStreamIgnoresRequestTimeout(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.RequestTimeout = 5 * time.Millisecond

	store := repository.NewMemoryStore()
	_, err := db.Seed(ctx, store, db.AdminAccount{Username: "admin", Email: "admin@example.com", Password: "admin123"})
	require.NoError(t, err)
	local, err := storage.NewLocalStore(cfg.UploadDir)
	require.NoError(t, err)
	require.NoError(t, local.Put(ctx, "sample1.mp3", strings.NewReader("slow bytes"), 10, "audio/mpeg"))

	srv := httptest.NewServer(New(cfg, Deps{Store: store, Objects: slowObjects{LocalStore: local, delay: 50 * time.Millisecond}}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream/track/1")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "slow bytes", string(body))
}

func TestHealthAndRouting(t *testing.T) {
	env := newTestEnv(t, testConfig(t), true)

	var health map[string]interface{}
	require.Equal(t, http.StatusOK, env.call(t, http.MethodGet, "/health", "", nil, &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "ok", health["cache"])

	var m message
	assert.Equal(t, http.StatusNotFound, env.call(t, http.MethodGet, "/nope", "", nil, &m))
	assert.Equal(t, http.StatusMethodNotAllowed, env.call(t, http.MethodPut, "/tracks", "", nil, &m))

	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/playlists", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCatalogEventsWebsocket(t *testing.T) {
	env := newTestEnv(t, testConfig(t), false)
	admin := env.login(t, "admin", "admin123")

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/catalog"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	status := env.call(t, http.MethodPost, "/admin/tracks", admin, map[string]interface{}{
		"title": "Live", "artist": "Band", "file_path": "live.mp3",
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt struct {
		Type    string                 `json:"type"`
		Content map[string]interface{} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, string(events.ContentAdded), evt.Type)
	assert.Equal(t, "Live", evt.Content["title"])
}
