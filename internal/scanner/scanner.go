package scanner

import (
	"context"
	"fmt"
	"log/slog"

	"newsroom/internal/domain"
)

// PageFunc fetches one page of a descending-recency listing. It returns the
// page's items and the token for the next page; an empty token means the
// listing is exhausted.
type PageFunc func(ctx context.Context, pageToken string) ([]domain.RawItem, string, error)

// EarlyStop pages through a newest-first source listing and stops requesting
// further pages once it sees an item that is both older than the window floor
// and already present in the known-ID set. The double condition matters:
// platform ordering is only approximately monotonic, so an item that is
// merely old, or merely known, is skipped without terminating the scan.
type EarlyStop struct {
	known    map[domain.CanonicalID]struct{}
	maxPages int
	logger   *slog.Logger
}

// NewEarlyStop builds a scanner over a snapshot of known IDs. maxPages is a
// hard ceiling on page requests per source, guarding against pathological
// non-monotonic listings.
func NewEarlyStop(known map[domain.CanonicalID]struct{}, maxPages int, logger *slog.Logger) *EarlyStop {
	if maxPages <= 0 {
		maxPages = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EarlyStop{known: known, maxPages: maxPages, logger: logger}
}

// Scan collects items inside the window until the stop condition or the page
// ceiling is hit. Items outside the window are excluded from the result but
// do not by themselves end the scan.
func (s *EarlyStop) Scan(ctx context.Context, window domain.RunWindow, fetch PageFunc) ([]domain.RawItem, error) {
	var collected []domain.RawItem
	pageToken := ""

	for page := 0; page < s.maxPages; page++ {
		items, next, err := fetch(ctx, pageToken)
		if err != nil {
			return collected, fmt.Errorf("fetch page %d: %w", page+1, err)
		}

		for _, item := range items {
			old := item.PublishedAt.Before(window.Since)
			_, seen := s.known[item.CanonicalID()]
			if old && seen {
				s.logger.Debug("early stop",
					"source", item.SourceName,
					"published_at", item.PublishedAt,
					"pages", page+1)
				return collected, nil
			}
			if !window.Contains(item.PublishedAt) {
				continue
			}
			collected = append(collected, item)
		}

		if next == "" {
			return collected, nil
		}
		pageToken = next
	}

	s.logger.Warn("page ceiling reached", "max_pages", s.maxPages)
	return collected, nil
}
