package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsroom/internal/domain"
)

func enriched(nativeID string) domain.EnrichedItem {
	return domain.EnrichedItem{
		RawItem: domain.RawItem{Kind: domain.KindFeedPost, SourceName: "feeds", NativeID: nativeID},
		Summary: "s",
	}
}

func feed(items ...domain.EnrichedItem) <-chan domain.EnrichedItem {
	ch := make(chan domain.EnrichedItem, len(items))
	for _, item := range items {
		ch <- item
	}
	close(ch)
	return ch
}

func TestLoaderCommitsInBatches(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	index := newFakeIndex()
	l := NewLoader(store, index, 2, 1, time.Millisecond, nil)
	summary := NewRunSummary()

	err := l.Load(context.Background(), feed(
		enriched("a"), enriched("b"), enriched("c"), enriched("d"), enriched("e"),
	), summary)
	require.NoError(t, err)

	assert.Len(t, store.stored(), 5)
	// Two full batches plus the final partial flush.
	require.Len(t, index.appends, 3)
	assert.Len(t, index.appends[0], 2)
	assert.Len(t, index.appends[1], 2)
	assert.Len(t, index.appends[2], 1)
	assert.Equal(t, 5, summary.TotalLoaded())
}

func TestLoaderAppendsIndexOnlyAfterCommit(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failOn = domain.Resolve(domain.KindFeedPost, "b")
	store.failTimes = -1 // fail forever
	index := newFakeIndex()
	l := NewLoader(store, index, 2, 2, time.Millisecond, nil)
	summary := NewRunSummary()

	err := l.Load(context.Background(), feed(
		enriched("a"), enriched("b"), enriched("c"),
	), summary)

	var storeErr StoreError
	require.ErrorAs(t, err, &storeErr)
	// The failing batch never reached the index.
	assert.Empty(t, index.appends)
	assert.Zero(t, summary.TotalLoaded())
}

func TestLoaderEarlierBatchesStayDurable(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failOn = domain.Resolve(domain.KindFeedPost, "d")
	store.failTimes = -1
	index := newFakeIndex()
	l := NewLoader(store, index, 2, 2, time.Millisecond, nil)
	summary := NewRunSummary()

	err := l.Load(context.Background(), feed(
		enriched("a"), enriched("b"), enriched("c"), enriched("d"), enriched("e"),
	), summary)

	var storeErr StoreError
	require.ErrorAs(t, err, &storeErr)
	// Batch {a,b} committed before {c,d} failed; nothing after is attempted.
	assert.Contains(t, store.stored(), domain.Resolve(domain.KindFeedPost, "a"))
	assert.Contains(t, store.stored(), domain.Resolve(domain.KindFeedPost, "b"))
	assert.NotContains(t, store.stored(), domain.Resolve(domain.KindFeedPost, "e"))
	require.Len(t, index.appends, 1)
	assert.Equal(t, 2, summary.TotalLoaded())
}

func TestLoaderRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failOn = domain.Resolve(domain.KindFeedPost, "a")
	store.failTimes = 1 // first attempt fails, retry succeeds
	index := newFakeIndex()
	l := NewLoader(store, index, 2, 3, time.Millisecond, nil)
	summary := NewRunSummary()

	err := l.Load(context.Background(), feed(enriched("a"), enriched("b")), summary)
	require.NoError(t, err)
	assert.Len(t, store.stored(), 2)
	assert.Equal(t, 2, summary.TotalLoaded())
}

func TestLoaderEmptyStream(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	l := NewLoader(store, newFakeIndex(), 10, 1, time.Millisecond, nil)

	err := l.Load(context.Background(), feed(), NewRunSummary())
	require.NoError(t, err)
	assert.Zero(t, store.upserts)
}

func TestStoreErrorWrapsCause(t *testing.T) {
	t.Parallel()

	err := StoreError{Err: errUnavailable}
	assert.True(t, errors.Is(err, errUnavailable))
}
