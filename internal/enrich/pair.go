package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appconfig "memeflow/config"
	"memeflow/internal/model"
	"memeflow/logger"
)

const iconCDNBase = "https://cdn.dexscreener.com/cms/images"

type pairToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Logo    string `json:"logo"`
	Image   string `json:"image"`
}

type pairInfo struct {
	ImageURL string `json:"imageUrl"`
	Header   string `json:"header"`
}

type pairProfile struct {
	Icon string `json:"icon"`
}

// Pair is the first entry of a token-pairs lookup response. Only the
// fields the pipeline consumes are decoded.
type Pair struct {
	PairAddress   string             `json:"pairAddress"`
	MarketCap     *float64           `json:"marketCap"`
	PairCreatedAt int64              `json:"pairCreatedAt"`
	PriceChange   *model.PriceChange `json:"priceChange"`
	BaseToken     *pairToken         `json:"baseToken"`
	Info          *pairInfo          `json:"info"`
	Profile       *pairProfile       `json:"profile"`
}

// ImageURL resolves the pair's icon through the prioritized cascade:
// info image, then profile icon, then base-token logo or image.
func (p *Pair) ImageURL() string {
	if p.Info != nil && p.Info.ImageURL != "" {
		return p.Info.ImageURL
	}
	if p.Profile != nil && p.Profile.Icon != "" {
		return formatIconURL(p.Profile.Icon)
	}
	if p.BaseToken != nil {
		if p.BaseToken.Logo != "" {
			return p.BaseToken.Logo
		}
		if p.BaseToken.Image != "" {
			return p.BaseToken.Image
		}
	}
	return ""
}

// formatIconURL turns a bare CMS icon id into a CDN URL. Already-full
// URLs pass through untouched.
func formatIconURL(icon string) string {
	icon = strings.TrimSpace(icon)
	if icon == "" {
		return ""
	}
	if strings.HasPrefix(icon, "http://") || strings.HasPrefix(icon, "https://") {
		return icon
	}
	return fmt.Sprintf("%s/%s?width=800&height=800&quality=90", iconCDNBase, icon)
}

// Client looks up pair-level market data for a single token.
type Client struct {
	baseURL string
	client  *http.Client
	log     *logger.Log
}

func NewClient(cfg appconfig.EnrichConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.PairURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        64,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		log: logger.GetLogger(),
	}
}

// LookupPair fetches the pair list for a token and returns its first
// entry. A successful lookup with no pairs returns (nil, nil).
func (c *Client) LookupPair(ctx context.Context, chainID, tokenAddress string) (*Pair, error) {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, chainID, tokenAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building pair request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pair lookup %s/%s: %w", chainID, tokenAddress, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("pair lookup %s/%s: status %d", chainID, tokenAddress, resp.StatusCode)
	}

	var pairs []Pair
	if err := json.NewDecoder(resp.Body).Decode(&pairs); err != nil {
		return nil, fmt.Errorf("decoding pair response: %w", err)
	}

	logger.IncrementPairLookup(len(pairs))
	logger.LogPerformanceEntry(c.log.WithComponent("enrich"), "enrich", "pair_lookup", time.Since(start), logger.Fields{
		"chain_id": chainID,
		"pairs":    len(pairs),
	})

	if len(pairs) == 0 {
		return nil, nil
	}
	return &pairs[0], nil
}
