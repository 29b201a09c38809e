package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	appconfig "memeflow/config"
	"memeflow/internal/enrich"
	"memeflow/internal/metrics"
	"memeflow/internal/model"
	"memeflow/internal/processor"
	"memeflow/internal/source"
	"memeflow/logger"
)

// Pipeline runs one full discovery pass: fetch all feeds, normalize and
// merge the candidates, enrich them, filter large caps and rank by
// market cap. It holds no state between runs.
type Pipeline struct {
	config    *appconfig.Config
	fetcher   *source.Fetcher
	scheduler *enrich.Scheduler
	filter    *processor.Filter
	log       *logger.Log
}

func New(cfg *appconfig.Config) *Pipeline {
	return &Pipeline{
		config:    cfg,
		fetcher:   source.NewFetcher(cfg),
		scheduler: enrich.NewScheduler(cfg.Enrich),
		filter:    processor.NewFilter(cfg.Filter),
		log:       logger.GetLogger(),
	}
}

// Run executes the pipeline for one request. chainID, when non-empty,
// restricts the merge table to that chain. The returned result is
// always non-nil on a nil error, even when every feed failed.
func (p *Pipeline) Run(ctx context.Context, limit int, chainID string) (*model.Result, error) {
	start := time.Now()
	runID := uuid.New().String()
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{"run_id": runID})

	sourced := p.fetcher.FetchAll(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalizer := processor.NewNormalizer(p.config.Filter.TrendingSource)
	merger := processor.NewMerger(chainID)
	merger.AddAll(normalizer.NormalizeAll(sourced))
	merged := merger.Items()

	items, skipped := p.scheduler.Enrich(ctx, merged, limit)

	kept, filtered := p.filter.Apply(items)
	ranked, unranked := processor.Rank(kept, limit)

	duration := time.Since(start)
	result := &model.Result{
		RunID:   runID,
		Total:   len(ranked),
		Limit:   limit,
		ChainID: chainID,
		Items:   ranked,
		Unranked: unranked,
		Stats: model.RunStats{
			Fetched:  len(sourced),
			Merged:   len(merged),
			Enriched: len(items) - skipped,
			Skipped:  skipped,
			Filtered: filtered,
		},
		StartedAt: start,
		Duration:  duration,
	}

	metrics.ObservePipelineRun(duration.Seconds())
	logger.RecordFlowMessage("pipeline_run", len(ranked))
	log.WithFields(logger.Fields{
		"fetched":  len(sourced),
		"merged":   len(merged),
		"skipped":  skipped,
		"filtered": filtered,
		"ranked":   len(ranked),
		"duration": duration.String(),
	}).Info("pipeline run complete")

	return result, nil
}
