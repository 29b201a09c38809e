package model

// PriceChange holds percentage price moves over the windows the pair
// endpoint reports. Pointers distinguish "zero" from "not reported".
type PriceChange struct {
	M5  *float64 `json:"m5,omitempty"`
	H1  *float64 `json:"h1,omitempty"`
	H24 *float64 `json:"h24,omitempty"`
}

// Link is one external link attached to a listing (website, socials).
type Link struct {
	URL   string `json:"url"`
	Type  string `json:"type,omitempty"`
	Label string `json:"label,omitempty"`
}

// Item is a canonical token reference plus the market fields added by
// enrichment. It is the wire shape served to the presentation layer.
type Item struct {
	ChainID        string       `json:"chainId"`
	TokenAddress   string       `json:"tokenAddress"`
	Sources        []string     `json:"sources"`
	Label          string       `json:"label,omitempty"`
	Symbol         string       `json:"symbol,omitempty"`
	Name           string       `json:"name,omitempty"`
	MarketCap      *float64     `json:"marketCap,omitempty"`
	PairAddress    string       `json:"pairAddress,omitempty"`
	PairCreatedAt  int64        `json:"pairCreatedAt,omitempty"`
	PriceChange    *PriceChange `json:"priceChange,omitempty"`
	Score          *float64     `json:"score,omitempty"`
	URL            string       `json:"url,omitempty"`
	HeaderImageURL string       `json:"headerImageUrl,omitempty"`
	IconURL        string       `json:"iconUrl,omitempty"`
	ClaimDate      string       `json:"claimDate,omitempty"`
	Links          []Link       `json:"links,omitempty"`
	Error          string       `json:"error,omitempty"`
	Rank           int          `json:"rank,omitempty"`
}

// Enrichment failure reasons recorded on Item.Error. A soft-timeout skip
// is deliberately not one of these: skipped items carry no error at all.
const (
	ErrPairNotFound    = "pair_not_found"
	ErrPairFetchFailed = "pair_fetch_failed"
)

// NewItem seeds an Item with the canonical fields of a merged token.
func NewItem(ref *TokenRef) Item {
	sources := make([]string, len(ref.Sources))
	copy(sources, ref.Sources)
	return Item{
		ChainID:      ref.ChainID,
		TokenAddress: ref.TokenAddress,
		Sources:      sources,
	}
}

// HasMarketCap reports whether enrichment resolved a market cap for the
// item. Items without one carry no ranking signal.
func (i *Item) HasMarketCap() bool {
	return i.MarketCap != nil
}
