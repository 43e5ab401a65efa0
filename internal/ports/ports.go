package ports

import (
	"context"
	"time"

	"newsroom/internal/domain"
)

// Extractor produces raw items for a run window from one named source class.
// known is the run-start snapshot of already-loaded canonical IDs; paged
// extractors use it to stop early, others may ignore it.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, window domain.RunWindow, known map[domain.CanonicalID]struct{}) ([]domain.RawItem, error)
}

// KnownIndex is the durable record of canonical IDs already loaded into the
// destination store. It is the only state that survives between runs.
type KnownIndex interface {
	// Snapshot returns the full set of known IDs as of run start.
	Snapshot(ctx context.Context) (map[domain.CanonicalID]struct{}, error)
	// Append records IDs after a load batch has committed.
	Append(ctx context.Context, ids []domain.CanonicalID) error
	// LastRun returns when the previous successful run finished; the zero
	// time when no run has ever completed.
	LastRun(ctx context.Context) (time.Time, error)
	// SetLastRun records the completion time of a successful run.
	SetLastRun(ctx context.Context, t time.Time) error
	Close() error
}

// Enricher attaches summaries and tags to a batch of raw items. Items the
// enrichment service fails on permanently are simply absent from the result;
// a returned error means the whole batch attempt failed.
type Enricher interface {
	EnrichBatch(ctx context.Context, items []domain.RawItem) ([]domain.EnrichedItem, error)
}

// ContentStore is the destination structured store.
type ContentStore interface {
	// Upsert inserts or updates the record keyed by the item's canonical ID.
	Upsert(ctx context.Context, item domain.EnrichedItem) error
	// Exists reports whether a record with the given canonical ID is present.
	Exists(ctx context.Context, id domain.CanonicalID) (bool, error)
	// ListCanonicalIDs pages through the store and returns every stored
	// canonical ID. Used to seed the known-ID index when it is empty.
	ListCanonicalIDs(ctx context.Context) ([]domain.CanonicalID, error)
}
