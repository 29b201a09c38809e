package processor

import (
	"strings"

	"memeflow/internal/model"
)

// Merger folds normalized candidates into a table keyed by
// chainId:tokenAddress. The first occurrence of a key owns the extra
// payload; later occurrences only contribute their source names.
// Insertion order is preserved so upstream feed priority survives the
// merge.
type Merger struct {
	chainFilter string
	table       map[string]*model.TokenRef
	order       []string
}

// NewMerger builds a merger. chainFilter, when non-empty, drops every
// candidate on a different chain before it enters the table. Matching
// is case-insensitive.
func NewMerger(chainFilter string) *Merger {
	return &Merger{
		chainFilter: strings.ToLower(chainFilter),
		table:       make(map[string]*model.TokenRef),
	}
}

func (m *Merger) Add(ref *model.TokenRef) {
	if m.chainFilter != "" && ref.ChainID != m.chainFilter {
		return
	}

	key := ref.Key()
	existing, ok := m.table[key]
	if !ok {
		m.table[key] = ref
		m.order = append(m.order, key)
		return
	}

	for _, src := range ref.Sources {
		existing.AddSource(src)
	}
	// Pass-through only holds while the trending feed is a token's
	// sole witness. A second strategy joining the record forces a
	// full pair lookup.
	if existing.Strategy != ref.Strategy {
		existing.Strategy = model.StrategyLookup
	}
}

func (m *Merger) AddAll(refs []*model.TokenRef) {
	for _, ref := range refs {
		m.Add(ref)
	}
}

// Items returns the merged candidates in first-seen order.
func (m *Merger) Items() []*model.TokenRef {
	out := make([]*model.TokenRef, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.table[key])
	}
	return out
}

func (m *Merger) Len() int {
	return len(m.table)
}
