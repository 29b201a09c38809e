package processor

import (
	"strings"
	"sync/atomic"

	"memeflow/internal/model"
	"memeflow/logger"
)

// Field alias cascades, checked in order. Feeds disagree on naming and
// the first non-empty string wins.
var (
	chainAliases   = []string{"chainId", "chain", "chain_id"}
	addressAliases = []string{"tokenAddress", "address", "token_address", "token"}
)

// Normalizer maps heterogeneous feed payloads into canonical token
// candidates. Items missing a resolvable chain or token address are
// dropped and counted, never errored.
type Normalizer struct {
	trendingSource string
	log            *logger.Log

	// Metrics
	normalized int64
	dropped    int64
}

func NewNormalizer(trendingSource string) *Normalizer {
	return &Normalizer{
		trendingSource: trendingSource,
		log:            logger.GetLogger(),
	}
}

// Normalize converts one sourced feed item into a token ref. The bool
// is false when the item carries no usable identity.
func (n *Normalizer) Normalize(item model.SourcedItem) (*model.TokenRef, bool) {
	chain, okChain := item.Raw.FirstString(chainAliases...)
	addr, okAddr := item.Raw.FirstString(addressAliases...)
	if !okChain || !okAddr {
		atomic.AddInt64(&n.dropped, 1)
		n.log.WithComponent("normalizer").WithFields(logger.Fields{
			"source":    item.Source,
			"has_chain": okChain,
			"has_addr":  okAddr,
		}).Debug("dropping item without token identity")
		return nil, false
	}

	ref := &model.TokenRef{
		ChainID:      strings.ToLower(chain),
		TokenAddress: addr,
		Sources:      []string{item.Source},
		Strategy:     model.StrategyLookup,
		Extra:        item.Raw,
	}
	if n.trendingSource != "" && item.Source == n.trendingSource {
		ref.Strategy = model.StrategyPassthrough
	}

	atomic.AddInt64(&n.normalized, 1)
	return ref, true
}

// NormalizeAll folds a feed batch, keeping input order.
func (n *Normalizer) NormalizeAll(items []model.SourcedItem) []*model.TokenRef {
	refs := make([]*model.TokenRef, 0, len(items))
	for _, item := range items {
		if ref, ok := n.Normalize(item); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

func (n *Normalizer) Dropped() int64 {
	return atomic.LoadInt64(&n.dropped)
}
