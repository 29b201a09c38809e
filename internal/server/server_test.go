package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "memeflow/config"
	"memeflow/internal/pipeline"
)

func serverConfig(feedURL, pairURL string) *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Memeflow.Name = "memeflow-test"
	cfg.Memeflow.Version = "0.0.0"
	cfg.Server.MaxLimit = 100
	cfg.Server.DefaultLimit = 10

	cfg.Feeds.Profiles = appconfig.FeedConfig{Enabled: true, Name: "profiles", URL: feedURL}
	cfg.Feeds.Timeout = 2 * time.Second

	cfg.Enrich = appconfig.EnrichConfig{
		Workers:  4,
		Deadline: 5 * time.Second,
		Factor:   2,
		PairURL:  pairURL,
		Timeout:  2 * time.Second,
	}
	cfg.Filter = appconfig.FilterConfig{
		TrendingSource:   "trending",
		Chains:           []string{"solana", "bsc", "base"},
		MarketCapCeiling: 60_000_000,
	}
	return cfg
}

func newTestRouter(t *testing.T, cfg *appconfig.Config) http.Handler {
	t.Helper()
	s := NewServer(cfg, pipeline.New(cfg), nil, nil, nil)
	router, err := s.buildRouter()
	require.NoError(t, err)
	return router
}

func upstreamServers(t *testing.T) (*appconfig.Config, func()) {
	t.Helper()
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"chainId": "bsc", "tokenAddress": "0xAAA"},
			{"chainId": "solana", "tokenAddress": "So111"}
		]`))
	}))
	pair := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"marketCap": 1000000, "baseToken": {"name": "Alpha", "symbol": "ALP"}}]`))
	}))
	cfg := serverConfig(feed.URL, pair.URL)
	return cfg, func() {
		feed.Close()
		pair.Close()
	}
}

func TestMemelistEndpoint(t *testing.T) {
	cfg, cleanup := upstreamServers(t)
	defer cleanup()
	router := newTestRouter(t, cfg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/memelist?limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s-maxage=60, stale-while-revalidate=300", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body struct {
		Total int `json:"total"`
		Limit int `json:"limit"`
		Items []struct {
			ChainID      string   `json:"chainId"`
			TokenAddress string   `json:"tokenAddress"`
			Rank         int      `json:"rank"`
			MarketCap    *float64 `json:"marketCap"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, 5, body.Limit)
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Items, 2)
	assert.Equal(t, 1, body.Items[0].Rank)
	assert.Equal(t, 2, body.Items[1].Rank)
}

func TestMemelistRejectsNonGet(t *testing.T) {
	cfg, cleanup := upstreamServers(t)
	defer cleanup()
	router := newTestRouter(t, cfg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/memelist", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET", rec.Header().Get("Allow"))
}

func TestMemelistChainFilter(t *testing.T) {
	cfg, cleanup := upstreamServers(t)
	defer cleanup()
	router := newTestRouter(t, cfg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/memelist?chainId=SOLANA", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Items []struct {
			ChainID string `json:"chainId"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "solana", body.Items[0].ChainID)
}

func TestClampLimit(t *testing.T) {
	cfg := serverConfig("", "")
	s := NewServer(cfg, pipeline.New(cfg), nil, nil, nil)

	cases := []struct {
		raw  string
		want int
	}{
		{"", 10},
		{"abc", 10},
		{"-3", 10},
		{"0", 10},
		{"1", 1},
		{"42", 42},
		{"100", 100},
		{"500", 100},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, s.clampLimit(tc.raw), "limit=%q", tc.raw)
	}
}

func TestHealthAndStatus(t *testing.T) {
	cfg, cleanup := upstreamServers(t)
	defer cleanup()
	router := newTestRouter(t, cfg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "memeflow-test", status["name"])

	resources, ok := status["resources"].(map[string]interface{})
	require.True(t, ok, "status carries a host resource snapshot")
	goroutines, ok := resources["goroutines"].(float64)
	require.True(t, ok)
	assert.Greater(t, goroutines, float64(0))
}

func TestMemelistPanicReturnsBadGateway(t *testing.T) {
	cfg, cleanup := upstreamServers(t)
	defer cleanup()

	// A nil pipeline makes the handler fault, which must surface as the
	// same 502 {error} shape a pipeline failure produces.
	s := NewServer(cfg, nil, nil, nil, nil)
	router, err := s.buildRouter()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/memelist", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body["error"])
}
