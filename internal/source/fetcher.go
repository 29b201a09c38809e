package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"memeflow/config"
	"memeflow/internal/metrics"
	"memeflow/internal/model"
	"memeflow/logger"
)

// Fetcher retrieves raw listing items from every enabled upstream feed.
// Feed failures never escalate: a feed that errors, returns a bad status
// or undecodable JSON simply contributes nothing to the run.
type Fetcher struct {
	cfg     *config.Config
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewFetcher creates a Fetcher with a pooled HTTP transport and a shared
// rate limiter covering all upstream requests.
func NewFetcher(cfg *config.Config) *Fetcher {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
	}

	timeout := cfg.Feeds.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	rps := cfg.Feeds.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Feeds.RateLimit.BurstSize
	if burst <= 0 {
		burst = rps
	}

	fetcher := &Fetcher{
		cfg:     cfg,
		client:  &http.Client{Transport: transport, Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}

	log.WithComponent("source_fetcher").WithFields(logger.Fields{
		"timeout":             timeout,
		"requests_per_second": rps,
		"burst":               burst,
	}).Info("source fetcher initialized")

	return fetcher
}

// FetchAll runs every enabled feed concurrently and returns the
// concatenation of their items, each stamped with its feed name. Items
// are concatenated in feed declaration order regardless of which fetch
// finishes first, so the first declared feed owns a token's listing
// metadata downstream. The call waits for all feeds; a failed feed
// contributes an empty slice.
func (f *Fetcher) FetchAll(ctx context.Context) []model.SourcedItem {
	feeds := f.cfg.Feeds.EnabledFeeds()

	slots := len(feeds)
	if f.cfg.Feeds.Trending.Enabled {
		slots++
	}
	names := make([]string, slots)
	results := make([][]model.RawItem, slots)

	var wg sync.WaitGroup
	for i, fc := range feeds {
		names[i] = fc.Name
		wg.Add(1)
		go func(i int, fc config.FeedConfig) {
			defer wg.Done()
			results[i] = f.fetchFeed(ctx, fc.Name, fc.URL, nil)
		}(i, fc)
	}

	if f.cfg.Feeds.Trending.Enabled {
		tc := f.cfg.Feeds.Trending
		names[slots-1] = tc.Name
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[slots-1] = f.fetchTrending(ctx, tc)
		}()
	}

	wg.Wait()

	var out []model.SourcedItem
	for i, items := range results {
		for _, raw := range items {
			out = append(out, model.SourcedItem{Source: names[i], Raw: raw})
		}
	}
	return out
}

// fetchFeed retrieves one feed URL and decodes a JSON array of loosely
// typed items. Every failure mode degrades to nil.
func (f *Fetcher) fetchFeed(ctx context.Context, name, url string, headers map[string]string) []model.RawItem {
	log := f.log.WithComponent("source_fetcher").WithFields(logger.Fields{
		"feed": name,
	})

	if err := f.limiter.Wait(ctx); err != nil {
		return nil
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.WithError(err).Warn("failed to build feed request")
		metrics.IncrementFeedError(name)
		return nil
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("failed to fetch feed")
		metrics.IncrementFeedError(name)
		return nil
	}
	defer resp.Body.Close()

	logger.LogPerformanceEntry(log, "source_fetcher", "feed_request", time.Since(start), logger.Fields{
		"feed": name,
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		log.WithFields(logger.Fields{"status": resp.StatusCode}).Warn("feed returned non-success status")
		metrics.IncrementFeedError(name)
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("failed to read feed body")
		metrics.IncrementFeedError(name)
		return nil
	}

	var items []model.RawItem
	if err := json.Unmarshal(body, &items); err != nil {
		log.WithError(err).Warn("failed to decode feed payload")
		metrics.IncrementFeedError(name)
		return nil
	}

	metrics.IncrementFeedSuccess(name)
	logger.IncrementFeedRead(len(body))
	log.WithFields(logger.Fields{"items": len(items)}).Debug("feed fetched")
	return items
}

// fetchTrending pages through the trending endpoint. The endpoint wants
// an API key header and page/pageSize query parameters; paging stops at
// the first short or empty page, or at max_pages.
func (f *Fetcher) fetchTrending(ctx context.Context, tc config.TrendingFeedConfig) []model.RawItem {
	header := tc.APIKeyHeader
	if header == "" {
		header = "X-API-KEY"
	}
	headers := map[string]string{}
	if tc.APIKey != "" {
		headers[header] = tc.APIKey
	}

	var all []model.RawItem
	for page := 1; page <= tc.MaxPages; page++ {
		url := fmt.Sprintf("%s?page=%d&pageSize=%d", tc.URL, page, tc.PageSize)
		items := f.fetchFeed(ctx, tc.Name, url, headers)
		all = append(all, items...)
		if len(items) < tc.PageSize {
			break
		}
	}
	return all
}
