package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "memeflow/config"
)

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

// testConfig wires two plain feeds, the trending feed and the pair
// endpoint to local test servers.
func testConfig(profilesURL, adsURL, trendingURL, pairURL string) *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Memeflow.Name = "memeflow-test"
	cfg.Memeflow.Version = "0.0.0"

	cfg.Feeds.Profiles = appconfig.FeedConfig{Enabled: true, Name: "profiles", URL: profilesURL}
	cfg.Feeds.Ads = appconfig.FeedConfig{Enabled: true, Name: "ads", URL: adsURL}
	cfg.Feeds.Trending = appconfig.TrendingFeedConfig{
		Enabled:  trendingURL != "",
		Name:     "trending",
		URL:      trendingURL,
		PageSize: 50,
		MaxPages: 1,
	}
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

func TestPipelineEndToEnd(t *testing.T) {
	profiles := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[{"chainId": "bsc", "tokenAddress": "0xAAA"}]`)
	}))
	defer profiles.Close()

	ads := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[{"chainId": "BSC", "tokenAddress": "0xAAA"}]`)
	}))
	defer ads.Close()

	trending := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[{"chain": "bsc", "address": "0xBBB", "marketCap": 1000000, "name": "Beta"}]`)
	}))
	defer trending.Close()

	pair := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bsc/0xAAA", r.URL.Path, "only the corroborated token needs a lookup")
		writeJSON(w, `[{"marketCap": 5000000, "baseToken": {"name": "Alpha", "symbol": "ALP"}}]`)
	}))
	defer pair.Close()

	p := New(testConfig(profiles.URL, ads.URL, trending.URL, pair.URL))
	result, err := p.Run(context.Background(), 10, "")
	require.NoError(t, err)

	require.Len(t, result.Items, 2)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 10, result.Limit)
	assert.NotEmpty(t, result.RunID)

	first := result.Items[0]
	assert.Equal(t, "0xAAA", first.TokenAddress)
	assert.Equal(t, 1, first.Rank)
	require.NotNil(t, first.MarketCap)
	assert.Equal(t, float64(5_000_000), *first.MarketCap)
	assert.ElementsMatch(t, []string{"profiles", "ads"}, first.Sources)

	second := result.Items[1]
	assert.Equal(t, "0xBBB", second.TokenAddress)
	assert.Equal(t, 2, second.Rank)
	require.NotNil(t, second.MarketCap)
	assert.Equal(t, float64(1_000_000), *second.MarketCap)
	assert.Equal(t, []string{"trending"}, second.Sources)

	assert.Equal(t, 2, result.Stats.Merged)
	assert.Equal(t, 3, result.Stats.Fetched)
}

func TestPipelineSurvivesFailedFeeds(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	ads := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[{"chainId": "solana", "tokenAddress": "So111"}]`)
	}))
	defer ads.Close()

	pair := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[{"marketCap": 250000}]`)
	}))
	defer pair.Close()

	p := New(testConfig(broken.URL, ads.URL, "", pair.URL))
	result, err := p.Run(context.Background(), 10, "")
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, "So111", result.Items[0].TokenAddress)
}

func TestPipelineChainFilter(t *testing.T) {
	profiles := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[
			{"chainId": "solana", "tokenAddress": "So111"},
			{"chainId": "bsc", "tokenAddress": "0xAAA"}
		]`)
	}))
	defer profiles.Close()

	ads := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[]`)
	}))
	defer ads.Close()

	pair := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[{"marketCap": 100}]`)
	}))
	defer pair.Close()

	p := New(testConfig(profiles.URL, ads.URL, "", pair.URL))
	result, err := p.Run(context.Background(), 10, "solana")
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, "solana", result.Items[0].ChainID)
	assert.Equal(t, "solana", result.ChainID)
}

func TestPipelineRetainsUnrankedForAudit(t *testing.T) {
	profiles := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[
			{"chainId": "bsc", "tokenAddress": "0x1"},
			{"chainId": "bsc", "tokenAddress": "0x2"}
		]`)
	}))
	defer profiles.Close()

	ads := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[]`)
	}))
	defer ads.Close()

	// Pair endpoint knows nothing about these tokens.
	pair := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[]`)
	}))
	defer pair.Close()

	p := New(testConfig(profiles.URL, ads.URL, "", pair.URL))
	result, err := p.Run(context.Background(), 10, "")
	require.NoError(t, err)

	assert.Empty(t, result.Items)
	require.Len(t, result.Unranked, 2)
	for _, item := range result.Unranked {
		assert.Equal(t, "pair_not_found", item.Error)
	}
}
