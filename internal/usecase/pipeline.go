package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"newsroom/internal/domain"
	"newsroom/internal/ports"
)

// videoImportance is assigned to video items, which skip the language model.
const videoImportance = 3

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Extractors []ports.Extractor
	Index      ports.KnownIndex
	Enricher   ports.Enricher
	Store      ports.ContentStore
	Classifier *Classifier
	Loader     *Loader
	Logger     *slog.Logger
}

// Pipeline runs one extraction -> dedup -> classify -> enrich -> load pass.
// Stages are linear with no backward transitions; per-item and per-source
// failures are isolated, only store and config failures are fatal.
type Pipeline struct {
	extractors   []ports.Extractor
	index        ports.KnownIndex
	enricher     ports.Enricher
	store        ports.ContentStore
	classifier   *Classifier
	loader       *Loader
	pool         *ants.Pool
	enrichBatch  int
	workDeadline time.Duration
	logger       *slog.Logger
}

// NewPipeline constructs the orchestrator. enrichBatch bounds enrichment
// request size; workDeadline bounds extraction and enrichment so a slow run
// still falls through to loading whatever is ready.
func NewPipeline(deps PipelineDeps, enrichBatch int, workDeadline time.Duration) (*Pipeline, error) {
	if enrichBatch <= 0 {
		enrichBatch = 10
	}
	if workDeadline <= 0 {
		workDeadline = 20 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	size := len(deps.Extractors)
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("extraction pool: %w", err)
	}

	return &Pipeline{
		extractors:   deps.Extractors,
		index:        deps.Index,
		enricher:     deps.Enricher,
		store:        deps.Store,
		classifier:   deps.Classifier,
		loader:       deps.Loader,
		pool:         pool,
		enrichBatch:  enrichBatch,
		workDeadline: workDeadline,
		logger:       logger,
	}, nil
}

// Release frees the extraction worker pool.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Run executes one full pass for the given window and returns the run
// summary. The returned error is non-nil only for fatal failures; the
// summary is valid either way. recordRun controls whether a successful pass
// advances the last-run marker; explicit historical windows leave it alone.
func (p *Pipeline) Run(ctx context.Context, window domain.RunWindow, recordRun bool) (*RunSummary, error) {
	summary := NewRunSummary()

	known, err := p.snapshotKnown(ctx)
	if err != nil {
		return summary, err
	}
	p.logger.Info("run started",
		"since", window.Since.Format(time.RFC3339),
		"known_ids", len(known))

	workCtx, cancel := context.WithTimeout(ctx, p.workDeadline)
	defer cancel()

	raw := p.extract(workCtx, window, known, summary)

	deduped := Dedup(raw, known)
	countRemoved(raw, deduped, summary, func(st *SourceStats) { st.Deduped++ })

	kept := deduped
	if p.classifier != nil {
		kept = make([]domain.RawItem, 0, len(deduped))
		for _, item := range deduped {
			if p.classifier.Keep(item) {
				kept = append(kept, item)
			} else {
				summary.Add(item.SourceName, func(st *SourceStats) { st.Filtered++ })
			}
		}
	}
	p.logger.Info("extraction done",
		"extracted", len(raw),
		"after_dedup", len(deduped),
		"after_filter", len(kept))

	out := make(chan domain.EnrichedItem)
	go func() {
		defer close(out)
		p.enrich(workCtx, kept, out, summary)
	}()

	// Loading runs under the parent context, not the work deadline, so
	// already-enriched items are still flushed when the deadline fires.
	loadErr := p.loader.Load(ctx, out, summary)
	if loadErr != nil {
		for range out {
			// Unblock the enrichment goroutine; remaining items are not
			// attempted and will be re-discovered next run.
		}
		return summary, loadErr
	}

	if recordRun {
		if err := p.index.SetLastRun(ctx, time.Now().UTC()); err != nil {
			p.logger.Warn("record last run failed", "error", err)
		}
	}
	return summary, nil
}

// snapshotKnown reads the index once at run start. An empty index is seeded
// from the destination store's canonical-ID listing so a fresh checkout run
// against a populated database does not re-ingest everything.
func (p *Pipeline) snapshotKnown(ctx context.Context) (map[domain.CanonicalID]struct{}, error) {
	known, err := p.index.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot known index: %w", err)
	}
	if len(known) > 0 || p.store == nil {
		return known, nil
	}

	ids, err := p.store.ListCanonicalIDs(ctx)
	if err != nil {
		p.logger.Warn("seeding known index from store failed", "error", err)
		return known, nil
	}
	if len(ids) == 0 {
		return known, nil
	}
	for _, id := range ids {
		known[id] = struct{}{}
	}
	if err := p.index.Append(ctx, ids); err != nil {
		p.logger.Warn("persisting seeded index failed", "error", err)
	}
	p.logger.Info("known index seeded from store", "ids", len(ids))
	return known, nil
}

// extract runs all extractors concurrently, each writing its own slot. A
// failing source is logged, recorded in the summary, and skipped; its partial
// results are still used.
func (p *Pipeline) extract(ctx context.Context, window domain.RunWindow, known map[domain.CanonicalID]struct{}, summary *RunSummary) []domain.RawItem {
	results := make([][]domain.RawItem, len(p.extractors))
	var wg sync.WaitGroup

	for i, ex := range p.extractors {
		i, ex := i, ex
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			items, err := ex.Extract(ctx, window, known)
			if err != nil {
				p.logger.Warn("extractor failed", "extractor", ex.Name(), "error", err)
				summary.RecordSourceError(SourceError{Source: ex.Name(), Err: err})
			}
			results[i] = items
		})
		if submitErr != nil {
			wg.Done()
			summary.RecordSourceError(SourceError{Source: ex.Name(), Err: submitErr})
		}
	}
	wg.Wait()

	var merged []domain.RawItem
	for _, items := range results {
		merged = append(merged, items...)
	}
	for _, item := range merged {
		summary.Add(item.SourceName, func(st *SourceStats) { st.Extracted++ })
	}
	return merged
}

// enrich pushes items downstream as they become ready. Videos bypass the
// model; articles go through it in bounded batches. A batch the adapter gives
// up on is dropped without affecting siblings.
func (p *Pipeline) enrich(ctx context.Context, items []domain.RawItem, out chan<- domain.EnrichedItem, summary *RunSummary) {
	var articles []domain.RawItem
	for _, item := range items {
		if item.IsVideo() {
			// Videos skip the model; the description stands in for a summary.
			out <- domain.EnrichedItem{RawItem: item, Summary: item.Text, Importance: videoImportance}
			summary.Add(item.SourceName, func(st *SourceStats) { st.Enriched++ })
			continue
		}
		articles = append(articles, item)
	}

	for start := 0; start < len(articles); start += p.enrichBatch {
		end := min(start+p.enrichBatch, len(articles))
		batch := articles[start:end]

		if ctx.Err() != nil {
			p.logger.Warn("work deadline reached, abandoning remaining enrichment",
				"remaining", len(articles)-start)
			for _, item := range articles[start:] {
				summary.Add(item.SourceName, func(st *SourceStats) { st.Dropped++ })
			}
			return
		}

		enriched, err := p.enricher.EnrichBatch(ctx, batch)
		if err != nil {
			p.logger.Warn("enrichment batch failed", "items", len(batch), "error", err)
			for _, item := range batch {
				summary.Add(item.SourceName, func(st *SourceStats) { st.Dropped++ })
			}
			continue
		}

		returned := make(map[domain.CanonicalID]struct{}, len(enriched))
		for _, item := range enriched {
			returned[item.CanonicalID()] = struct{}{}
			summary.Add(item.SourceName, func(st *SourceStats) { st.Enriched++ })
			out <- item
		}
		for _, item := range batch {
			if _, ok := returned[item.CanonicalID()]; !ok {
				summary.Add(item.SourceName, func(st *SourceStats) { st.Dropped++ })
			}
		}
	}
}

func countRemoved(before, after []domain.RawItem, summary *RunSummary, bump func(*SourceStats)) {
	surviving := make(map[domain.CanonicalID]int, len(after))
	for _, item := range after {
		surviving[item.CanonicalID()]++
	}
	for _, item := range before {
		id := item.CanonicalID()
		if surviving[id] > 0 {
			surviving[id]--
			continue
		}
		summary.Add(item.SourceName, bump)
	}
}
