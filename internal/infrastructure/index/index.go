// Package index implements the durable known-ID index on BadgerDB. It is the
// only state shared between runs: a set of canonical IDs already loaded into
// the destination store, plus the timestamp of the last successful run.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"newsroom/internal/domain"
	"newsroom/internal/ports"
)

const (
	seenPrefix = "seen:"
	lastRunKey = "meta:last_run"
)

// Index is a badger-backed ports.KnownIndex.
type Index struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ ports.KnownIndex = (*Index)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens (creating if needed) the index directory at path. An empty path
// opens an in-memory index, used by tests and dry runs.
func Open(path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &Index{db: db, logger: logger}, nil
}

// Snapshot returns the full set of known canonical IDs.
func (i *Index) Snapshot(ctx context.Context) (map[domain.CanonicalID]struct{}, error) {
	known := make(map[domain.CanonicalID]struct{})

	err := i.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(seenPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := it.Item().Key()
			known[domain.CanonicalID(key[len(seenPrefix):])] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot index: %w", err)
	}
	return known, nil
}

// Append records canonical IDs. Append-only; writing an existing ID is a
// no-op, so replays after partial failures are safe.
func (i *Index) Append(ctx context.Context, ids []domain.CanonicalID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	wb := i.db.NewWriteBatch()
	defer wb.Cancel()
	for _, id := range ids {
		if err := wb.Set([]byte(seenPrefix+string(id)), nil); err != nil {
			return fmt.Errorf("append id %s: %w", id, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush index batch: %w", err)
	}
	return nil
}

// LastRun returns the finish time of the previous successful run, or the
// zero time when none is recorded.
func (i *Index) LastRun(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	var t time.Time
	err := i.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastRunKey))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			parsed, perr := time.Parse(time.RFC3339, string(val))
			if perr != nil {
				return perr
			}
			t = parsed
			return nil
		})
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("read last run: %w", err)
	}
	return t, nil
}

// SetLastRun records the finish time of a successful run.
func (i *Index) SetLastRun(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := i.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(lastRunKey), []byte(t.UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return fmt.Errorf("set last run: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (i *Index) Close() error {
	return i.db.Close()
}
