package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsroom/internal/domain"
	"newsroom/internal/ports"
	"newsroom/pkg/retry"
)

// Loader streams enriched items into the destination store in bounded
// batches. After a batch commits, its canonical IDs are appended to the
// known-ID index, so a mid-run failure loses at most one batch. The loader
// never skips ahead past a failed batch: items after it are simply not
// attempted and will be re-discovered on the next run.
type Loader struct {
	store       ports.ContentStore
	index       ports.KnownIndex
	batchSize   int
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
}

// NewLoader wires the store and the index.
func NewLoader(store ports.ContentStore, index ports.KnownIndex, batchSize int, maxAttempts int, retryDelay time.Duration, logger *slog.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = 10
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		store:       store,
		index:       index,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		logger:      logger,
	}
}

// Load consumes items until the channel closes, committing full batches as
// they fill. Returns a StoreError when a batch cannot be committed within the
// retry budget; earlier batches stay durable.
func (l *Loader) Load(ctx context.Context, items <-chan domain.EnrichedItem, summary *RunSummary) error {
	batch := make([]domain.EnrichedItem, 0, l.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := l.commit(ctx, batch, summary); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for item := range items {
		batch = append(batch, item)
		if len(batch) >= l.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	return flush()
}

// commit upserts every item of the batch and then records the batch's IDs in
// the index. The whole batch is retried as a unit; upserts are idempotent, so
// re-writing items that already landed on a previous attempt is harmless.
func (l *Loader) commit(ctx context.Context, batch []domain.EnrichedItem, summary *RunSummary) error {
	err := retry.Do(ctx, func() error {
		for _, item := range batch {
			if err := l.store.Upsert(ctx, item); err != nil {
				return fmt.Errorf("upsert %s: %w", item.CanonicalID(), err)
			}
		}
		return nil
	}, l.maxAttempts, l.retryDelay)
	if err != nil {
		return StoreError{Err: err}
	}

	ids := make([]domain.CanonicalID, 0, len(batch))
	for _, item := range batch {
		ids = append(ids, item.CanonicalID())
		summary.Add(item.SourceName, func(st *SourceStats) { st.Loaded++ })
	}

	if err := l.index.Append(ctx, ids); err != nil {
		// Items are durable in the store; a stale index only costs some
		// redundant upserts next run.
		l.logger.Warn("append to known index failed", "error", err, "ids", len(ids))
	}

	l.logger.Info("batch committed", "items", len(batch))
	return nil
}
