package processor

import (
	"sort"

	"memeflow/internal/model"
)

// Rank orders items by market cap descending and assigns contiguous
// 1-based ranks to the top limit entries. Items without a known market
// cap never rank; they are returned separately so callers can still
// audit them. The sort is stable, so tokens with equal market caps
// keep their merge order.
func Rank(items []model.Item, limit int) (ranked, unranked []model.Item) {
	ranked = make([]model.Item, 0, len(items))
	for _, item := range items {
		if item.HasMarketCap() {
			ranked = append(ranked, item)
		} else {
			unranked = append(unranked, item)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].MarketCap > *ranked[j].MarketCap
	})

	if limit > 0 && len(ranked) > limit {
		unranked = append(unranked, ranked[limit:]...)
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked, unranked
}
