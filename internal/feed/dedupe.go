// Package feed implements the unified feed pagination and filtering engine:
// deduplication of overlapping server pages, multi-criteria filtering with
// scored sorting, the pagination state manager, and the load-more flow.
package feed

import (
	"github.com/DeepBeatAI/ai-music-community-sub011/internal/model"
)

// Dedupe returns posts with each ID occurring exactly once, preserving the
// order of first occurrence. Overlapping server pages (retries, a load-more
// racing a reset) are expected, so this runs at every mutation boundary into
// the fetched set. O(n) with a seen-set.
func Dedupe(posts []model.Post) []model.Post {
	if len(posts) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(posts))
	out := make([]model.Post, 0, len(posts))
	for _, p := range posts {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
