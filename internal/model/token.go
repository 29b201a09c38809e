package model

import (
	"fmt"
	"strings"
)

// Strategy selects how a merged token gets its market data filled in.
// It is stamped once during normalization so downstream stages never have
// to re-derive it from the source set.
type Strategy string

const (
	// StrategyLookup issues a per-token pair lookup against the market-data API.
	StrategyLookup Strategy = "lookup"
	// StrategyPassthrough maps market fields directly from the feed payload.
	// Used for items whose only source is the trending feed.
	StrategyPassthrough Strategy = "passthrough"
)

// RawItem is a single loosely-typed listing entry as returned by an
// upstream feed. Field names vary between feeds, so access goes through
// the alias helpers below.
type RawItem map[string]interface{}

// String returns the value under key when it is a non-empty string.
func (r RawItem) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// Number returns the value under key when it is numeric. JSON decoding
// into interface{} always yields float64 for numbers.
func (r RawItem) Number(key string) (float64, bool) {
	v, ok := r[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// FirstString walks the alias list in order and returns the first
// present, non-empty string value.
func (r RawItem) FirstString(keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := r.String(k); ok {
			return s, true
		}
	}
	return "", false
}

// FirstNumber walks the alias list in order and returns the first
// present numeric value.
func (r RawItem) FirstNumber(keys ...string) (float64, bool) {
	for _, k := range keys {
		if n, ok := r.Number(k); ok {
			return n, true
		}
	}
	return 0, false
}

// Map returns the value under key when it is a nested object.
func (r RawItem) Map(key string) (map[string]interface{}, bool) {
	v, ok := r[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

// TokenRef is the deduplicated identity of a candidate token: the
// composite (chainId, tokenAddress) key plus accumulated source
// attribution. The raw feed payload is retained in Extra for the
// enrichment strategies.
type TokenRef struct {
	ChainID      string
	TokenAddress string
	Sources      []string
	Strategy     Strategy
	Extra        RawItem
}

// Key returns the composite dedup key.
func (t *TokenRef) Key() string {
	return fmt.Sprintf("%s:%s", t.ChainID, t.TokenAddress)
}

// AddSource appends a feed name to the attribution set. Duplicate names
// are ignored so Sources behaves as an ordered set.
func (t *TokenRef) AddSource(name string) {
	for _, s := range t.Sources {
		if s == name {
			return
		}
	}
	t.Sources = append(t.Sources, name)
}

// HasSource reports whether the given feed contributed this token.
func (t *TokenRef) HasSource(name string) bool {
	for _, s := range t.Sources {
		if s == name {
			return true
		}
	}
	return false
}

// OnlySource reports whether the attribution set is exactly {name}.
func (t *TokenRef) OnlySource(name string) bool {
	return len(t.Sources) == 1 && t.Sources[0] == name
}
