package enrich

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	appconfig "memeflow/config"
	"memeflow/internal/metrics"
	"memeflow/internal/model"
	"memeflow/logger"
)

// Scheduler fills market fields into merged tokens through a fixed-size
// worker pool. A single wall-clock deadline covers the whole phase:
// workers check it before starting each item and skip the rest once it
// passes, but an in-flight lookup is never cancelled. Skipped items keep
// their canonical fields and carry no error.
type Scheduler struct {
	config appconfig.EnrichConfig
	client *Client
	log    *logger.Log
}

func NewScheduler(cfg appconfig.EnrichConfig) *Scheduler {
	return &Scheduler{
		config: cfg,
		client: NewClient(cfg),
		log:    logger.GetLogger(),
	}
}

// Enrich runs the pool over refs and returns one item per ref, in ref
// order, plus the count of items that were never enriched. At most
// limit * factor items are eligible for enrichment; the remainder come
// back with canonical fields only.
func (s *Scheduler) Enrich(ctx context.Context, refs []*model.TokenRef, limit int) ([]model.Item, int) {
	if len(refs) == 0 {
		return nil, 0
	}

	eligible := len(refs)
	if limit > 0 && s.config.Factor > 0 && limit*s.config.Factor < eligible {
		eligible = limit * s.config.Factor
	}

	// The phase deadline is cooperative: workers consult it before
	// starting an item, never mid-request.
	phaseCtx, cancel := context.WithTimeout(ctx, s.config.Deadline)
	defer cancel()
	start := time.Now()

	items := make([]model.Item, len(refs))
	var (
		mu      sync.Mutex
		skipped int
	)

	work := make(chan int)
	wg := &sync.WaitGroup{}

	workers := s.config.Workers
	if workers <= 0 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				ref := refs[idx]
				item := model.NewItem(ref)
				applyFeedFields(&item, ref.Extra)

				enriched := false
				switch {
				case idx >= eligible || phaseCtx.Err() != nil:
					metrics.IncrementEnrichOutcome(metrics.OutcomeSkipped)
				case ref.Strategy == model.StrategyPassthrough:
					applyPassthrough(&item, ref.Extra)
					metrics.IncrementEnrichOutcome(metrics.OutcomePassthrough)
					enriched = true
				default:
					s.lookup(ctx, ref, &item)
					enriched = true
				}

				mu.Lock()
				items[idx] = item
				if !enriched {
					skipped++
				}
				mu.Unlock()
			}
		}()
	}

	for idx := range refs {
		work <- idx
	}
	close(work)
	wg.Wait()

	s.log.WithComponent("enrich").WithFields(logger.Fields{
		"tokens":   len(refs),
		"eligible": eligible,
		"skipped":  skipped,
		"duration": time.Since(start).String(),
	}).Info("enrichment phase complete")

	return items, skipped
}

// lookup runs the secondary-lookup strategy. The request context is the
// pipeline's, not the phase deadline, so a call that started in time is
// allowed to run to its own HTTP timeout.
func (s *Scheduler) lookup(ctx context.Context, ref *model.TokenRef, item *model.Item) {
	pair, err := s.client.LookupPair(ctx, ref.ChainID, ref.TokenAddress)
	if err != nil {
		s.log.WithComponent("enrich").WithError(err).WithFields(logger.Fields{
			"chain_id": ref.ChainID,
			"token":    ref.TokenAddress,
		}).Warn("pair lookup failed")
		metrics.IncrementEnrichOutcome(metrics.OutcomeFailed)
		item.Error = model.ErrPairFetchFailed
		return
	}
	if pair == nil {
		metrics.IncrementEnrichOutcome(metrics.OutcomeFailed)
		item.Error = model.ErrPairNotFound
		return
	}

	item.MarketCap = pair.MarketCap
	item.PairAddress = pair.PairAddress
	item.PairCreatedAt = normalizeCreatedAt(pair.PairCreatedAt)
	item.PriceChange = pair.PriceChange
	if pair.BaseToken != nil {
		item.Label = pair.BaseToken.Name
		item.Name = pair.BaseToken.Name
		item.Symbol = pair.BaseToken.Symbol
	}
	if item.IconURL == "" {
		item.IconURL = pair.ImageURL()
	}
	if item.HeaderImageURL == "" && pair.Info != nil {
		item.HeaderImageURL = pair.Info.Header
	}
	metrics.IncrementEnrichOutcome(metrics.OutcomeEnriched)
}

// applyFeedFields maps listing metadata that comes straight from the
// feed payload, regardless of strategy. A feed-supplied icon wins over
// anything a later pair lookup finds.
func applyFeedFields(item *model.Item, extra model.RawItem) {
	if url, ok := extra.String("url"); ok {
		item.URL = url
	}
	if score, ok := extra.FirstNumber("totalAmount", "score"); ok {
		item.Score = &score
	}
	if claim, ok := extra.String("claimDate"); ok {
		item.ClaimDate = claim
	}
	if header, ok := extra.FirstString("header", "headerImageUrl"); ok {
		item.HeaderImageURL = header
	}
	if icon, ok := extra.String("icon"); ok {
		item.IconURL = formatIconURL(icon)
	}
	if arr, ok := extra["links"].([]interface{}); ok {
		item.Links = decodeLinkList(arr)
	}
}

func decodeLinkList(arr []interface{}) []model.Link {
	links := make([]model.Link, 0, len(arr))
	for _, v := range arr {
		m, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		raw := model.RawItem(m)
		url, ok := raw.String("url")
		if !ok {
			continue
		}
		link := model.Link{URL: url}
		link.Type, _ = raw.String("type")
		link.Label, _ = raw.String("label")
		links = append(links, link)
	}
	if len(links) == 0 {
		return nil
	}
	return links
}

// applyPassthrough maps market fields the trending feed already ships,
// skipping the pair lookup entirely.
func applyPassthrough(item *model.Item, extra model.RawItem) {
	if mc, ok := extra.FirstNumber("marketCap", "market_cap", "mcap"); ok {
		item.MarketCap = &mc
	}
	if name, ok := extra.String("name"); ok {
		item.Name = name
		item.Label = name
	}
	if symbol, ok := extra.String("symbol"); ok {
		item.Symbol = symbol
	}
	if item.IconURL == "" {
		if logo, ok := extra.FirstString("logo", "image"); ok {
			item.IconURL = logo
		}
	}
	if created, ok := extra.FirstNumber("pairCreatedAt", "createdAt"); ok {
		item.PairCreatedAt = normalizeCreatedAt(int64(created))
	}
	item.PriceChange = passthroughPriceChange(extra)
	if links := passthroughLinks(extra); links != nil {
		item.Links = links
	}
}

func passthroughPriceChange(extra model.RawItem) *model.PriceChange {
	pc, ok := extra.Map("priceChange")
	if !ok {
		return nil
	}
	raw := model.RawItem(pc)
	change := &model.PriceChange{}
	found := false
	if v, ok := raw.Number("m5"); ok {
		change.M5 = &v
		found = true
	}
	if v, ok := raw.Number("h1"); ok {
		change.H1 = &v
		found = true
	}
	if v, ok := raw.Number("h24"); ok {
		change.H24 = &v
		found = true
	}
	if !found {
		return nil
	}
	return change
}

// passthroughLinks decodes the trending feed's links payload, which
// arrives as a JSON array embedded in a string field.
func passthroughLinks(extra model.RawItem) []model.Link {
	encoded, ok := extra.String("links")
	if !ok {
		return nil
	}
	var links []model.Link
	if err := json.Unmarshal([]byte(encoded), &links); err != nil {
		return nil
	}
	return links
}

// normalizeCreatedAt lifts second-resolution timestamps to
// milliseconds. The pair endpoint reports both depending on chain.
func normalizeCreatedAt(ts int64) int64 {
	if ts > 0 && ts < 10_000_000_000 {
		return ts * 1000
	}
	return ts
}
