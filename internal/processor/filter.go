package processor

import (
	"memeflow/config"
	"memeflow/internal/model"
	"memeflow/logger"
)

// Filter removes tokens that look like established large caps surfaced
// only by the trending feed. A token is removed when all three hold:
// its sole source is the trending feed, its chain is on the watch
// list, and its market cap exceeds the configured ceiling. Tokens
// without a known market cap are never removed here.
type Filter struct {
	trendingSource string
	chains         map[string]struct{}
	ceiling        float64
	log            *logger.Log
}

func NewFilter(cfg config.FilterConfig) *Filter {
	chains := make(map[string]struct{}, len(cfg.Chains))
	for _, c := range cfg.Chains {
		chains[c] = struct{}{}
	}
	return &Filter{
		trendingSource: cfg.TrendingSource,
		chains:         chains,
		ceiling:        cfg.MarketCapCeiling,
		log:            logger.GetLogger(),
	}
}

// Apply returns the surviving items plus the count of removals. Input
// order is preserved.
func (f *Filter) Apply(items []model.Item) ([]model.Item, int) {
	kept := make([]model.Item, 0, len(items))
	removed := 0
	for _, item := range items {
		if f.shouldRemove(item) {
			removed++
			f.log.WithComponent("filter").WithFields(logger.Fields{
				"chain_id":   item.ChainID,
				"token":      item.TokenAddress,
				"market_cap": *item.MarketCap,
			}).Debug("removing large-cap trending-only token")
			continue
		}
		kept = append(kept, item)
	}
	return kept, removed
}

func (f *Filter) shouldRemove(item model.Item) bool {
	if f.trendingSource == "" {
		return false
	}
	if len(item.Sources) != 1 || item.Sources[0] != f.trendingSource {
		return false
	}
	if _, watched := f.chains[item.ChainID]; !watched {
		return false
	}
	return item.MarketCap != nil && *item.MarketCap > f.ceiling
}
