package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DeepBeatAI/ai-music-community-sub011/internal/model"
)

// DefaultMaxAutoFetchPosts caps how far the backfill loop will grow AllPosts
// while hunting for posts that survive client-side filtering.
const DefaultMaxAutoFetchPosts = 150

// Repository is the external post-repository collaborator. Implementations
// own timeouts; the handler treats a timeout as a plain fetch failure.
type Repository interface {
	// FetchPosts returns one recency-ordered server page.
	FetchPosts(ctx context.Context, page, pageSize int) (model.FetchResult, error)

	// FetchPostsByCreator returns one recency-ordered page of a single
	// creator's posts.
	FetchPostsByCreator(ctx context.Context, creatorID string, page, pageSize int) (model.FetchResult, error)

	// SearchContent returns one window of server-side full-text results.
	SearchContent(ctx context.Context, filters model.SearchFilters, offset, limit int) (model.SearchResult, error)
}

// LoadMoreResult reports the outcome of one load-more request.
type LoadMoreResult struct {
	Strategy Strategy
	// NewPosts is the newly revealed slice of the display.
	NewPosts []model.Post
	// Stale is set when a fetch resolved after its filter context changed and
	// its results were discarded. Not an error — a normal race resolution.
	Stale bool
	// CanLoadMore is false when both the server and the filtered in-memory
	// results are exhausted.
	CanLoadMore bool
}

// Handler orchestrates one load-more request: it consults the manager for a
// strategy, drives the state machine, and invokes the repository for
// server fetches. Retries are not automatic — a failed fetch surfaces the
// error and leaves the state machine ready for a fresh attempt.
type Handler struct {
	mgr               *Manager
	sm                *StateMachine
	repo              Repository
	log               *slog.Logger
	maxAutoFetchPosts int
}

// NewHandler creates a Handler. maxAutoFetchPosts bounds the backfill loop
// (DefaultMaxAutoFetchPosts if zero or negative).
func NewHandler(mgr *Manager, repo Repository, log *slog.Logger, maxAutoFetchPosts int) *Handler {
	if maxAutoFetchPosts <= 0 {
		maxAutoFetchPosts = DefaultMaxAutoFetchPosts
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		mgr:               mgr,
		sm:                NewStateMachine(),
		repo:              repo,
		log:               log,
		maxAutoFetchPosts: maxAutoFetchPosts,
	}
}

// StateMachine exposes the underlying load-more state machine, mainly so the
// UI can render the fetching phase.
func (h *Handler) StateMachine() *StateMachine {
	return h.sm
}

// HandleLoadMore serves one "load more" request. Client pagination has
// already been applied by the manager's decision; a server fetch drives the
// state machine, merges the fetched page, and backfills further pages (up to
// the cap) when active filters hide everything the first page brought in.
func (h *Handler) HandleLoadMore(ctx context.Context) (LoadMoreResult, error) {
	before := h.mgr.GetState()
	dec := h.mgr.LoadMore()

	if !dec.CanLoadMore {
		return LoadMoreResult{Strategy: StrategyNone}, nil
	}

	if dec.Strategy == StrategyClientPaginate {
		after := h.mgr.GetState()
		return LoadMoreResult{
			Strategy:    StrategyClientPaginate,
			NewPosts:    after.PaginatedPosts[len(before.PaginatedPosts):],
			CanLoadMore: true,
		}, nil
	}

	if err := h.sm.Begin(); err != nil {
		return LoadMoreResult{Strategy: StrategyServerFetch}, err
	}
	defer func() { _ = h.sm.Settle() }()

	if err := h.mgr.SetLoadingState(true, true); err != nil {
		_ = h.sm.Fail()
		return LoadMoreResult{Strategy: StrategyServerFetch}, err
	}

	result, err := h.fetchAndMerge(ctx, before, dec)

	h.clearLoading()
	if err != nil {
		_ = h.sm.Fail()
		return LoadMoreResult{Strategy: StrategyServerFetch}, err
	}
	_ = h.sm.Succeed()
	return result, nil
}

// fetchAndMerge performs the server fetch loop. The first merge advances the
// visible page; subsequent merges only backfill the candidate set until the
// new page has something to show, the server runs dry, or the cap is hit.
func (h *Handler) fetchAndMerge(ctx context.Context, before State, dec Decision) (LoadMoreResult, error) {
	revealedFrom := len(before.PaginatedPosts)
	filters := before.Filters
	page := dec.NextPage
	offset := dec.NextOffset
	advance := true
	known := len(before.AllPosts)

	for {
		posts, hasMore, total, fromSearch, err := h.fetchOne(ctx, filters, before.PageSize, page, offset)
		if err != nil {
			return LoadMoreResult{}, fmt.Errorf("fetch posts (page=%d, offset=%d): %w", page, offset, err)
		}

		params := UpdatePostsParams{
			NewPosts:    posts,
			HasMore:     &hasMore,
			FromSearch:  fromSearch,
			AdvancePage: advance,
			Generation:  &dec.Generation,
		}
		if total >= 0 {
			params.TotalCount = &total
		}
		if !fromSearch {
			params.ServerPage = page
		}
		// A new search or reset invalidated this fetch while it was in
		// flight; the manager rejects the merge under its own lock.
		if !h.mgr.UpdatePosts(params) {
			h.log.Debug("discarding stale load-more result", "generation", dec.Generation)
			return LoadMoreResult{Strategy: StrategyServerFetch, Stale: true}, nil
		}
		advance = false

		state := h.mgr.GetState()
		if len(state.PaginatedPosts) > revealedFrom || !state.HasMorePosts {
			return LoadMoreResult{
				Strategy:    StrategyServerFetch,
				NewPosts:    state.PaginatedPosts[min(revealedFrom, len(state.PaginatedPosts)):],
				CanLoadMore: true,
			}, nil
		}
		// A page that contributed nothing new (empty, or fully overlapping
		// earlier fetches) cannot make progress no matter how many more the
		// server claims; stop instead of spinning.
		if len(state.AllPosts) == known {
			h.log.Debug("backfill page added no posts", "page", page, "offset", offset)
			return LoadMoreResult{Strategy: StrategyServerFetch, CanLoadMore: state.HasMorePosts}, nil
		}
		known = len(state.AllPosts)
		if len(state.AllPosts) >= h.maxAutoFetchPosts {
			h.log.Debug("backfill cap reached", "all_posts", len(state.AllPosts),
				"cap", h.maxAutoFetchPosts)
			return LoadMoreResult{Strategy: StrategyServerFetch, CanLoadMore: true}, nil
		}
		page = state.LastServerPage + 1
		offset = state.SearchOffset
	}
}

// fetchOne picks the repository call matching the active filters: search
// windows for a text query, creator pages for a creator filter, plain
// recency pages otherwise. total is -1 when the call carries no total.
func (h *Handler) fetchOne(ctx context.Context, filters model.SearchFilters, pageSize, page, offset int) (posts []model.Post, hasMore bool, total int, fromSearch bool, err error) {
	f := filters.Normalize()
	switch {
	case f.Query != "":
		res, err := h.repo.SearchContent(ctx, f, offset, pageSize)
		if err != nil {
			return nil, false, 0, true, err
		}
		hasMore = offset+len(res.Posts) < res.TotalResults
		return res.Posts, hasMore, res.TotalResults, true, nil
	case f.CreatorID != "":
		res, err := h.repo.FetchPostsByCreator(ctx, f.CreatorID, page, pageSize)
		if err != nil {
			return nil, false, 0, false, err
		}
		return res.Posts, res.HasMore, -1, false, nil
	default:
		res, err := h.repo.FetchPosts(ctx, page, pageSize)
		if err != nil {
			return nil, false, 0, false, err
		}
		return res.Posts, res.HasMore, res.Total, false, nil
	}
}

func (h *Handler) clearLoading() {
	if err := h.mgr.SetLoadingState(false, false); err != nil {
		h.log.Error("clear loading state", "error", err)
	}
}
