package feed

import (
	"slices"
	"strings"
	"time"

	"github.com/DeepBeatAI/ai-music-community-sub011/internal/model"
)

// Engine applies filter criteria and scored sorting to a candidate post set.
// It performs no I/O and its output is deterministic: every sort produces a
// total order (ties broken by descending CreatedAt, then by ID), so identical
// inputs always yield identical output.
type Engine struct {
	now func() time.Time
}

// NewEngine creates an Engine using the wall clock.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// NewEngineWithClock creates an Engine with a custom clock (useful for
// testing time-range cutoffs and recency scoring).
func NewEngineWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Apply filters and sorts posts according to filters. Stages run in a fixed
// order — text query, creator, post type, time range, sort — each narrowing
// the set the next one sees. The clock is read at most once per pass so the
// time-range boundary is consistent across all posts.
func (e *Engine) Apply(filters model.SearchFilters, posts []model.Post) []model.Post {
	f := filters.Normalize()

	// Fast path: nothing active means the input (server recency order) is
	// already the answer.
	if f.IsEmpty() {
		return slices.Clone(posts)
	}

	// The clock is consulted lazily: a pass that never reaches the time
	// stage or a recency-scored sort must not read it at all.
	var passNow time.Time
	clock := func() time.Time {
		if passNow.IsZero() {
			passNow = e.now().UTC()
		}
		return passNow
	}

	out := posts

	if f.Query != "" {
		q := strings.ToLower(f.Query)
		kept := make([]model.Post, 0, len(out))
		for _, p := range out {
			if matchesQuery(p, q) {
				kept = append(kept, p)
			}
		}
		out = kept
	}

	if f.CreatorID != "" {
		kept := make([]model.Post, 0, len(out))
		for _, p := range out {
			if p.AuthorID == f.CreatorID {
				kept = append(kept, p)
			}
		}
		// The author produced zero posts in this set; time and type
		// filters cannot un-empty it, so skip the remaining stages.
		if len(kept) == 0 {
			return nil
		}
		out = kept
	}

	if f.PostType != "" {
		kept := make([]model.Post, 0, len(out))
		for _, p := range out {
			if p.PostType == f.PostType {
				kept = append(kept, p)
			}
		}
		out = kept
	}

	if f.TimeRange != "" {
		cutoff := cutoffFor(f.TimeRange, clock())
		kept := make([]model.Post, 0, len(out))
		for _, p := range out {
			// Inclusive boundary: createdAt == cutoff passes.
			if !p.CreatedAt.Before(cutoff) {
				kept = append(kept, p)
			}
		}
		out = kept
	}

	out = slices.Clone(out)
	sortPosts(out, f, clock)
	return out
}

// matchesQuery reports whether the post matches the lowercased query via its
// content or, for audio posts, its audio filename. Username matches are
// deliberately excluded here: matching users surface through the separate
// user-search path, not the post list.
func matchesQuery(p model.Post, q string) bool {
	if strings.Contains(strings.ToLower(p.Content), q) {
		return true
	}
	if p.PostType == model.PostTypeAudio && p.AudioFilename != "" {
		return strings.Contains(strings.ToLower(p.AudioFilename), q)
	}
	return false
}

// cutoffFor computes the UTC cutoff instant for a time range.
func cutoffFor(tr model.TimeRange, now time.Time) time.Time {
	switch tr {
	case model.TimeRangeToday:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case model.TimeRangeWeek:
		return now.Add(-7 * 24 * time.Hour)
	case model.TimeRangeMonth:
		return now.Add(-30 * 24 * time.Hour)
	}
	return time.Time{}
}

func sortPosts(posts []model.Post, f model.SearchFilters, clock func() time.Time) {
	switch f.EffectiveSort() {
	case model.SortOldest:
		slices.SortFunc(posts, func(a, b model.Post) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
	case model.SortLikes:
		slices.SortFunc(posts, func(a, b model.Post) int {
			if a.LikeCount != b.LikeCount {
				return b.LikeCount - a.LikeCount
			}
			return compareCreatedDesc(a, b)
		})
	case model.SortPopular:
		now := clock()
		slices.SortFunc(posts, func(a, b model.Post) int {
			sa, sb := popularScore(a, now), popularScore(b, now)
			if sa != sb {
				return sb - sa
			}
			return compareCreatedDesc(a, b)
		})
	case model.SortRelevance:
		// Without a query, relevance degrades to recent.
		if f.Query == "" {
			sortRecent(posts)
			return
		}
		q := strings.ToLower(strings.TrimSpace(f.Query))
		slices.SortFunc(posts, func(a, b model.Post) int {
			sa, sb := relevanceScore(a, q), relevanceScore(b, q)
			if sa != sb {
				return sb - sa
			}
			return compareCreatedDesc(a, b)
		})
	default:
		sortRecent(posts)
	}
}

func sortRecent(posts []model.Post) {
	slices.SortFunc(posts, compareCreatedDesc)
}

// compareCreatedDesc is the shared tie-breaker: newer first, then by ID so
// that even fully tied posts keep a reproducible order.
func compareCreatedDesc(a, b model.Post) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// popularScore is likeCount*2 plus a recency bonus that decays to zero over
// seven days.
func popularScore(p model.Post, now time.Time) int {
	daysOld := int(now.Sub(p.CreatedAt).Hours() / 24)
	if daysOld < 0 {
		daysOld = 0
	}
	recency := 7 - daysOld
	if recency < 0 {
		recency = 0
	}
	return p.LikeCount*2 + recency
}

// relevanceScore weights where the query matched: content 10, audio filename
// 8, author username 5, plus up to 5 points of like count.
func relevanceScore(p model.Post, q string) int {
	score := 0
	if strings.Contains(strings.ToLower(p.Content), q) {
		score += 10
	}
	if p.AudioFilename != "" && strings.Contains(strings.ToLower(p.AudioFilename), q) {
		score += 8
	}
	if strings.Contains(strings.ToLower(p.AuthorUsername), q) {
		score += 5
	}
	likes := p.LikeCount
	if likes > 5 {
		likes = 5
	}
	return score + likes
}
