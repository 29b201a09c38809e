package model

import "time"

// RunStats counts what happened to items at each pipeline stage of a
// single run.
type RunStats struct {
	Fetched  int `json:"fetched"`
	Merged   int `json:"merged"`
	Enriched int `json:"enriched"`
	Skipped  int `json:"skipped"`
	Filtered int `json:"filtered"`
}

// Result is the outcome of one pipeline run. Items is the ranked,
// size-limited output; Unranked carries the items that resolved no
// market cap and were excluded from ranking, retained for auditing.
type Result struct {
	RunID     string        `json:"runId"`
	Total     int           `json:"total"`
	Limit     int           `json:"limit"`
	ChainID   string        `json:"chainId,omitempty"`
	Items     []Item        `json:"items"`
	Unranked  []Item        `json:"-"`
	Stats     RunStats      `json:"stats"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}
