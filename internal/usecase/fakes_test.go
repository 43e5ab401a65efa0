package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"newsroom/internal/domain"
	"newsroom/internal/ports"
)

var errUnavailable = errors.New("store unavailable")

// fakeStore is an in-memory ports.ContentStore. failOn makes upserts of a
// specific canonical ID fail, failTimes times.
type fakeStore struct {
	mu        sync.Mutex
	items     map[domain.CanonicalID]domain.EnrichedItem
	upserts   int
	failOn    domain.CanonicalID
	failTimes int
	listIDs   []domain.CanonicalID
}

var _ ports.ContentStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{items: map[domain.CanonicalID]domain.EnrichedItem{}}
}

func (s *fakeStore) Upsert(_ context.Context, item domain.EnrichedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if item.CanonicalID() == s.failOn && s.failTimes != 0 {
		if s.failTimes > 0 {
			s.failTimes--
		}
		return errUnavailable
	}
	s.items[item.CanonicalID()] = item
	return nil
}

func (s *fakeStore) Exists(_ context.Context, id domain.CanonicalID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	return ok, nil
}

func (s *fakeStore) ListCanonicalIDs(context.Context) ([]domain.CanonicalID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CanonicalID(nil), s.listIDs...), nil
}

func (s *fakeStore) stored() []domain.CanonicalID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CanonicalID, 0, len(s.items))
	for id := range s.items {
		out = append(out, id)
	}
	return out
}

// fakeIndex is an in-memory ports.KnownIndex recording appends in order.
type fakeIndex struct {
	mu      sync.Mutex
	known   map[domain.CanonicalID]struct{}
	appends [][]domain.CanonicalID
	lastRun time.Time
}

var _ ports.KnownIndex = (*fakeIndex)(nil)

func newFakeIndex(ids ...domain.CanonicalID) *fakeIndex {
	m := make(map[domain.CanonicalID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return &fakeIndex{known: m}
}

func (i *fakeIndex) Snapshot(context.Context) (map[domain.CanonicalID]struct{}, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make(map[domain.CanonicalID]struct{}, len(i.known))
	for id := range i.known {
		out[id] = struct{}{}
	}
	return out, nil
}

func (i *fakeIndex) Append(_ context.Context, ids []domain.CanonicalID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.appends = append(i.appends, append([]domain.CanonicalID(nil), ids...))
	for _, id := range ids {
		i.known[id] = struct{}{}
	}
	return nil
}

func (i *fakeIndex) LastRun(context.Context) (time.Time, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastRun, nil
}

func (i *fakeIndex) SetLastRun(_ context.Context, t time.Time) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastRun = t
	return nil
}

func (i *fakeIndex) Close() error { return nil }

// fakeExtractor returns canned items, or an error.
type fakeExtractor struct {
	name  string
	items []domain.RawItem
	err   error
}

var _ ports.Extractor = (*fakeExtractor)(nil)

func (f *fakeExtractor) Name() string { return f.name }

func (f *fakeExtractor) Extract(context.Context, domain.RunWindow, map[domain.CanonicalID]struct{}) ([]domain.RawItem, error) {
	return f.items, f.err
}

// fakeEnricher applies fn per batch; the default stamps a summary on every
// item so tests can tell enriched output apart.
type fakeEnricher struct {
	fn func(context.Context, []domain.RawItem) ([]domain.EnrichedItem, error)
}

var _ ports.Enricher = (*fakeEnricher)(nil)

func (f *fakeEnricher) EnrichBatch(ctx context.Context, items []domain.RawItem) ([]domain.EnrichedItem, error) {
	if f.fn != nil {
		return f.fn(ctx, items)
	}
	out := make([]domain.EnrichedItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.EnrichedItem{RawItem: item, Summary: "summary of " + item.Title, Importance: 5})
	}
	return out, nil
}
