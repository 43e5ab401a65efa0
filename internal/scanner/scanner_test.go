package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"newsroom/internal/domain"
)

func videoAt(id string, published time.Time) domain.RawItem {
	return domain.RawItem{
		Kind:        domain.KindChannelUpload,
		SourceName:  "channels",
		NativeID:    id,
		PublishedAt: published,
	}
}

// pager serves fixed pages of items, counting the requests it receives.
type pager struct {
	pages [][]domain.RawItem
	calls int
}

func (p *pager) fetch(_ context.Context, token string) ([]domain.RawItem, string, error) {
	idx := 0
	if token != "" {
		var err error
		if idx, err = parseToken(token); err != nil {
			return nil, "", err
		}
	}
	p.calls++
	next := ""
	if idx+1 < len(p.pages) {
		next = tokenFor(idx + 1)
	}
	return p.pages[idx], next, nil
}

func tokenFor(i int) string { return string(rune('a' + i)) }

func parseToken(t string) (int, error) {
	if len(t) != 1 || t[0] < 'a' {
		return 0, errors.New("bad token")
	}
	return int(t[0] - 'a'), nil
}

func known(ids ...string) map[domain.CanonicalID]struct{} {
	m := make(map[domain.CanonicalID]struct{}, len(ids))
	for _, id := range ids {
		m[domain.Resolve(domain.KindChannelUpload, id)] = struct{}{}
	}
	return m
}

func TestScanStopsOnOldAndKnown(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	p := &pager{pages: [][]domain.RawItem{
		{
			videoAt("new1", since.Add(48*time.Hour)),
			videoAt("new2", since.Add(24*time.Hour)),
		},
		{
			videoAt("stale", since.Add(-time.Hour)), // old AND known: stop here
			videoAt("never-reached", since.Add(12*time.Hour)),
		},
		{
			videoAt("unreachable", since.Add(6*time.Hour)),
		},
	}}

	s := NewEarlyStop(known("stale"), 10, nil)
	got, err := s.Scan(context.Background(), domain.RunWindow{Since: since}, p.fetch)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 items before the stop, got %d", len(got))
	}
	if p.calls != 2 {
		t.Fatalf("expected scan to stop after page 2, made %d requests", p.calls)
	}
}

func TestScanSkipsMerelyOldOrMerelyKnown(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	p := &pager{pages: [][]domain.RawItem{
		{
			videoAt("known-but-fresh", since.Add(36*time.Hour)),
			videoAt("old-but-unknown", since.Add(-time.Hour)),
			// Out-of-order late publish after an old item: must still be found.
			videoAt("late-publish", since.Add(2*time.Hour)),
		},
	}}

	s := NewEarlyStop(known("known-but-fresh"), 10, nil)
	got, err := s.Scan(context.Background(), domain.RunWindow{Since: since}, p.fetch)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	ids := make(map[string]bool, len(got))
	for _, item := range got {
		ids[item.NativeID] = true
	}
	if !ids["late-publish"] {
		t.Error("in-window item after an out-of-window one was dropped")
	}
	if !ids["known-but-fresh"] {
		t.Error("known-but-fresh item should be collected (dedup happens later)")
	}
	if ids["old-but-unknown"] {
		t.Error("item below the window floor must not be collected")
	}
}

func TestScanHonorsPageCeiling(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	pages := make([][]domain.RawItem, 30)
	for i := range pages {
		pages[i] = []domain.RawItem{videoAt(tokenFor(i), since.Add(time.Duration(30-i)*time.Hour))}
	}
	p := &pager{pages: pages}

	s := NewEarlyStop(nil, 3, nil)
	got, err := s.Scan(context.Background(), domain.RunWindow{Since: since}, p.fetch)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if p.calls != 3 {
		t.Fatalf("expected exactly 3 page requests, got %d", p.calls)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 collected items, got %d", len(got))
	}
}

func TestScanPropagatesFetchError(t *testing.T) {
	t.Parallel()

	boom := errors.New("quota exceeded")
	calls := 0
	fetch := func(context.Context, string) ([]domain.RawItem, string, error) {
		calls++
		if calls == 1 {
			return []domain.RawItem{videoAt("first", time.Now())}, "next", nil
		}
		return nil, "", boom
	}

	s := NewEarlyStop(nil, 10, nil)
	got, err := s.Scan(context.Background(), domain.RunWindow{Since: time.Now().Add(-time.Hour)}, fetch)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("partial results before the failure should be returned, got %d items", len(got))
	}
}
