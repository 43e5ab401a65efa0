package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsroom/internal/config"
	"newsroom/internal/domain"
	"newsroom/internal/infrastructure/feed"
	"newsroom/internal/infrastructure/index"
	"newsroom/internal/infrastructure/llm"
	"newsroom/internal/infrastructure/notion"
	"newsroom/internal/infrastructure/youtube"
	"newsroom/internal/logging"
	"newsroom/internal/ports"
	"newsroom/internal/usecase"
)

// Application wires configuration to the pipeline and runs it once.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	return &Application{cfg: cfg, logger: baseLogger}
}

// Run executes one pipeline pass. override, when non-nil, replaces the
// derived run window (used by backfill and --since). The summary is valid
// even when err is non-nil.
func (a *Application) Run(ctx context.Context, override *domain.RunWindow) (*usecase.RunSummary, error) {
	if err := a.cfg.Validate(); err != nil {
		return usecase.NewRunSummary(), err
	}

	indexPath := a.cfg.Index.Path
	if a.cfg.DryRun {
		// Dry runs must not advance the durable index.
		indexPath = ""
	}
	idx, err := index.Open(indexPath, a.logger.With("component", "index"))
	if err != nil {
		return usecase.NewRunSummary(), err
	}
	defer idx.Close()

	window, err := a.resolveWindow(ctx, idx, override)
	if err != nil {
		return usecase.NewRunSummary(), err
	}

	var store ports.ContentStore
	if a.cfg.DryRun {
		store = dryRunStore{logger: a.logger.With("component", "store")}
	} else {
		store = notion.NewStore(a.cfg.Notion)
	}

	var enricher ports.Enricher
	if a.cfg.LLM.APIKey != "" {
		enricher, err = llm.NewEnricher(a.cfg.LLM, a.logger.With("component", "llm"))
		if err != nil {
			return usecase.NewRunSummary(), err
		}
	} else {
		a.logger.Warn("no LLM API key, items keep their raw text")
		enricher = passthroughEnricher{}
	}

	classifier := usecase.NewClassifier(a.cfg.Pipeline.ShortsMaxDuration, mixedFeedNames(a.cfg.Feeds))
	loader := usecase.NewLoader(store, idx,
		a.cfg.Pipeline.LoadBatchSize, 3, time.Second,
		a.logger.With("component", "loader"))

	pipeline, err := usecase.NewPipeline(usecase.PipelineDeps{
		Extractors: a.buildExtractors(),
		Index:      idx,
		Enricher:   enricher,
		Store:      store,
		Classifier: classifier,
		Loader:     loader,
		Logger:     a.logger.With("component", "pipeline"),
	}, a.cfg.LLM.BatchSize, a.cfg.Pipeline.WorkDeadline)
	if err != nil {
		return usecase.NewRunSummary(), err
	}
	defer pipeline.Release()

	// Explicit windows (backfill, --since) leave the run marker untouched.
	return pipeline.Run(ctx, window, override == nil && !a.cfg.DryRun)
}

// resolveWindow derives [last successful run, now], with the configured
// backfill cutoff as the floor when no run has ever completed.
func (a *Application) resolveWindow(ctx context.Context, idx ports.KnownIndex, override *domain.RunWindow) (domain.RunWindow, error) {
	if override != nil {
		return *override, nil
	}

	cutoff, err := a.cfg.Window.CutoffTime()
	if err != nil {
		return domain.RunWindow{}, err
	}

	since := cutoff
	lastRun, err := idx.LastRun(ctx)
	if err != nil {
		a.logger.Warn("reading last run failed, falling back to cutoff", "error", err)
	} else if !lastRun.IsZero() {
		// Overlap one interval so items published while the previous run
		// executed are not missed; dedup absorbs the overlap.
		since = lastRun.Add(-a.cfg.Window.Interval)
		if since.Before(cutoff) {
			since = cutoff
		}
	}

	return domain.RunWindow{Since: since, Until: time.Now().UTC()}, nil
}

func (a *Application) buildExtractors() []ports.Extractor {
	var extractors []ports.Extractor

	if len(a.cfg.Feeds) > 0 {
		extractors = append(extractors,
			feed.NewExtractor(a.cfg.Feeds, nil, a.logger.With("component", "feed")))
	}

	if a.cfg.YouTube.APIKey == "" {
		if len(a.cfg.Channels) > 0 || len(a.cfg.People) > 0 {
			a.logger.Warn("no YouTube API key, skipping video sources")
		}
		return extractors
	}

	client := youtube.NewClient(a.cfg.YouTube.APIKey)
	if len(a.cfg.Channels) > 0 {
		extractors = append(extractors,
			youtube.NewChannelExtractor(client, a.cfg.Channels, a.cfg.YouTube,
				a.logger.With("component", "youtube.channels")))
	}
	if len(a.cfg.People) > 0 {
		extractors = append(extractors,
			youtube.NewPersonExtractor(client, a.cfg.People, a.cfg.YouTube,
				a.logger.With("component", "youtube.people")))
	}
	return extractors
}

func mixedFeedNames(feeds []config.FeedConfig) []string {
	var names []string
	for _, f := range feeds {
		if f.Mixed {
			names = append(names, f.Name)
		}
	}
	return names
}

// dryRunStore satisfies ports.ContentStore without touching the real
// destination; every upsert is only logged.
type dryRunStore struct {
	logger *slog.Logger
}

func (s dryRunStore) Upsert(_ context.Context, item domain.EnrichedItem) error {
	s.logger.Info("[dry run] upsert", "id", item.CanonicalID(), "title", item.Title)
	return nil
}

func (s dryRunStore) Exists(context.Context, domain.CanonicalID) (bool, error) {
	return false, nil
}

func (s dryRunStore) ListCanonicalIDs(context.Context) ([]domain.CanonicalID, error) {
	return nil, nil
}

// passthroughEnricher keeps items as-is when no model is configured.
type passthroughEnricher struct{}

func (passthroughEnricher) EnrichBatch(_ context.Context, items []domain.RawItem) ([]domain.EnrichedItem, error) {
	out := make([]domain.EnrichedItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.EnrichedItem{RawItem: item})
	}
	return out, nil
}

// Describe returns a short one-line description of the run mode for logs.
func (a *Application) Describe() string {
	mode := "live"
	if a.cfg.DryRun {
		mode = "dry-run"
	}
	return fmt.Sprintf("%d feeds, %d channels, %d people (%s)",
		len(a.cfg.Feeds), len(a.cfg.Channels), len(a.cfg.People), mode)
}
