// Package model defines the domain types used across the application.
package model

import (
	"strings"
	"time"
)

// PostType distinguishes plain text posts from audio uploads.
type PostType string

// Supported post types.
const (
	PostTypeText  PostType = "text"
	PostTypeAudio PostType = "audio"
)

// Post represents a single feed entry. The feed core treats instances as
// immutable value objects for the duration of a filter/sort pass.
type Post struct {
	ID             string
	AuthorID       string
	AuthorUsername string
	Content        string
	PostType       PostType
	AudioFilename  string
	LikeCount      int
	CreatedAt      time.Time
}

// SortBy defines the ordering applied to a filtered result set.
type SortBy string

// Supported sort orders.
const (
	SortRecent    SortBy = "recent"
	SortOldest    SortBy = "oldest"
	SortLikes     SortBy = "likes"
	SortPopular   SortBy = "popular"
	SortRelevance SortBy = "relevance"
)

// TimeRange restricts results to posts created after a cutoff.
type TimeRange string

// Supported time ranges.
const (
	TimeRangeToday TimeRange = "today"
	TimeRangeWeek  TimeRange = "week"
	TimeRangeMonth TimeRange = "month"
)

// SearchFilters describes the active query. The zero value means "no filters".
// Loose callers may pass sentinel values ("all", "recent", padded or empty
// strings); Normalize collapses them so the filter engine only ever sees true
// presence or absence.
type SearchFilters struct {
	Query           string
	CreatorID       string
	CreatorUsername string
	PostType        PostType
	TimeRange       TimeRange
	SortBy          SortBy
}

// Normalize returns a copy with default-equivalent values collapsed to
// absent: the query is trimmed, "all" and "recent" sentinels are dropped, and
// a dangling CreatorID/CreatorUsername (one without the other) is removed
// rather than allowed to corrupt downstream filtering.
func (f SearchFilters) Normalize() SearchFilters {
	f.Query = strings.TrimSpace(f.Query)
	if string(f.PostType) == "all" {
		f.PostType = ""
	}
	if string(f.TimeRange) == "all" {
		f.TimeRange = ""
	}
	if f.SortBy == SortRecent {
		f.SortBy = ""
	}
	if f.CreatorID == "" || f.CreatorUsername == "" {
		f.CreatorID = ""
		f.CreatorUsername = ""
	}
	return f
}

// IsEmpty reports whether no filter field is active after normalization.
func (f SearchFilters) IsEmpty() bool {
	n := f.Normalize()
	return n.Query == "" && n.CreatorID == "" && n.PostType == "" &&
		n.TimeRange == "" && n.SortBy == ""
}

// EffectiveSort returns the sort order to apply, falling back to recent.
func (f SearchFilters) EffectiveSort() SortBy {
	if f.SortBy == "" {
		return SortRecent
	}
	return f.SortBy
}

// FetchResult is one server page of the recency feed.
type FetchResult struct {
	Posts   []Post
	HasMore bool
	Total   int
}

// SearchResult is one window of server-side search results.
type SearchResult struct {
	Posts        []Post
	TotalResults int
}
