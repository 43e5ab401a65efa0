package usecase

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// SourceStats counts what happened to one source's items during a run.
type SourceStats struct {
	Extracted int
	Deduped   int
	Filtered  int
	Enriched  int
	Dropped   int
	Loaded    int
}

// RunSummary aggregates per-source counters and source-level failures for the
// whole run. Safe for concurrent use: the enrichment and loading stages
// update it from different goroutines.
type RunSummary struct {
	mu      sync.Mutex
	sources map[string]*SourceStats
	// SourceErrors records sources that were skipped entirely.
	SourceErrors []SourceError
}

// NewRunSummary returns an empty summary.
func NewRunSummary() *RunSummary {
	return &RunSummary{sources: make(map[string]*SourceStats)}
}

func (s *RunSummary) stats(source string) *SourceStats {
	st, ok := s.sources[source]
	if !ok {
		st = &SourceStats{}
		s.sources[source] = st
	}
	return st
}

// Add applies fn to the stats of source under the lock.
func (s *RunSummary) Add(source string, fn func(*SourceStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.stats(source))
}

// RecordSourceError notes a skipped source.
func (s *RunSummary) RecordSourceError(err SourceError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SourceErrors = append(s.SourceErrors, err)
}

// TotalLoaded returns the number of items durably written this run.
func (s *RunSummary) TotalLoaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, st := range s.sources {
		total += st.Loaded
	}
	return total
}

// TotalExtracted returns the number of items produced by all extractors.
func (s *RunSummary) TotalExtracted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, st := range s.sources {
		total += st.Extracted
	}
	return total
}

// Stats returns a copy of the counters for one source.
func (s *RunSummary) Stats(source string) SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sources[source]; ok {
		return *st
	}
	return SourceStats{}
}

// String renders the per-source table printed at the end of a run.
func (s *RunSummary) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("--- Run Summary ---\n")
	for _, name := range names {
		st := s.sources[name]
		fmt.Fprintf(&b, "[%s] extracted=%d deduped=%d filtered=%d enriched=%d dropped=%d loaded=%d\n",
			name, st.Extracted, st.Deduped, st.Filtered, st.Enriched, st.Dropped, st.Loaded)
	}
	for _, se := range s.SourceErrors {
		fmt.Fprintf(&b, "[%s] skipped: %v\n", se.Source, se.Err)
	}
	return b.String()
}
