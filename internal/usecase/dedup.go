package usecase

import "newsroom/internal/domain"

// Dedup removes items whose canonical ID is in the known snapshot or has
// already appeared earlier in the same sequence. The same publication can
// legitimately arrive twice in one run, e.g. a video found both in a
// channel's upload list and in a person's search results. The filter is
// stable: surviving items keep their relative order, and it has no side
// effects on the snapshot.
func Dedup(items []domain.RawItem, known map[domain.CanonicalID]struct{}) []domain.RawItem {
	seen := make(map[domain.CanonicalID]struct{}, len(items))
	out := make([]domain.RawItem, 0, len(items))

	for _, item := range items {
		id := item.CanonicalID()
		if _, ok := known[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, item)
	}

	return out
}
