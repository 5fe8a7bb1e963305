package server_test

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsstoot/db"
	"rsstoot/feed"
	"rsstoot/mastodon"
	"rsstoot/runner"
	"rsstoot/server"
)

func newTestApp(t *testing.T) *server.ServerConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, db.Migrate(path))
	store, err := db.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := mastodon.NewClient()
	engine := runner.NewEngine(store, feed.NewReader(), client)
	engine.Pacing = 0

	config := &server.ServerConfig{
		Store:         store,
		Scheduler:     runner.NewScheduler(engine),
		Mastodon:      client,
		PublicURL:     "http://localhost:5000",
		AdminUser:     "admin",
		AdminPassword: "hunter2",
	}
	return config
}

func authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:hunter2"))
}

func doRequest(t *testing.T, config *server.ServerConfig, method, target, body string) *http.Response {
	t.Helper()
	app := server.Server(config)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", authHeader())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestAPIRequiresBasicAuth(t *testing.T) {
	config := newTestApp(t)
	app := server.Server(config)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMetricsIsPublic(t *testing.T) {
	config := newTestApp(t)
	app := server.Server(config)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	config := newTestApp(t)

	resp := doRequest(t, config, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		NextRun struct {
			Display string `json:"nextRun"`
		} `json:"nextRun"`
		Stats struct {
			Feeds int64 `json:"feeds"`
		} `json:"stats"`
		LastRun any `json:"lastRun"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "—", body.NextRun.Display)
	assert.Zero(t, body.Stats.Feeds)
	assert.Nil(t, body.LastRun)
}

func TestFeedEndpoints(t *testing.T) {
	config := newTestApp(t)

	resp := doRequest(t, config, http.MethodPost, "/api/feeds",
		`{"url": "https://example.com/rss", "hashtags": "news"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, resp, &created)
	require.NotZero(t, created.ID)

	resp = doRequest(t, config, http.MethodGet, "/api/feeds", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var feeds []struct {
		ID        int64   `json:"id"`
		URL       string  `json:"url"`
		Name      string  `json:"name"`
		Active    bool    `json:"active"`
		PostCount int64   `json:"postCount"`
		Accounts  []int64 `json:"accounts"`
	}
	decode(t, resp, &feeds)
	require.Len(t, feeds, 1)
	assert.Equal(t, "https://example.com/rss", feeds[0].URL)
	// Name defaults to the feed host when the request omits it.
	assert.Equal(t, "example.com", feeds[0].Name)
	assert.True(t, feeds[0].Active)
	assert.Zero(t, feeds[0].PostCount)

	resp = doRequest(t, config, http.MethodPost, "/api/feeds/1/toggle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, config, http.MethodGet, "/api/feeds", "")
	decode(t, resp, &feeds)
	require.Len(t, feeds, 1)
	assert.False(t, feeds[0].Active)

	resp = doRequest(t, config, http.MethodDelete, "/api/feeds/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, config, http.MethodGet, "/api/feeds", "")
	decode(t, resp, &feeds)
	assert.Empty(t, feeds)
}

func TestCreateFeedRejectsBadURL(t *testing.T) {
	config := newTestApp(t)

	resp := doRequest(t, config, http.MethodPost, "/api/feeds", `{"url": "ftp://example.com/rss"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateFeedRejectsDuplicateURL(t *testing.T) {
	config := newTestApp(t)

	resp := doRequest(t, config, http.MethodPost, "/api/feeds", `{"url": "https://example.com/rss"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doRequest(t, config, http.MethodPost, "/api/feeds", `{"url": "https://example.com/rss"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRunsEndpoint(t *testing.T) {
	config := newTestApp(t)

	resp := doRequest(t, config, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var runs []any
	decode(t, resp, &runs)
	assert.Empty(t, runs)

	resp = doRequest(t, config, http.MethodDelete, "/api/runs", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConnectAccountRejectsBadInstance(t *testing.T) {
	config := newTestApp(t)

	resp := doRequest(t, config, http.MethodPost, "/api/accounts/connect", `{"instance": "mastodon.social"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOAuthCallbackRejectsUnknownState(t *testing.T) {
	config := newTestApp(t)
	app := server.Server(config)

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&state=missing", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
