package feed

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/DeepBeatAI/ai-music-community-sub011/internal/model"
)

// DefaultPageSize is the number of posts revealed per pagination step.
const DefaultPageSize = 15

// PaginationMode says where the next page of results comes from.
type PaginationMode string

// Pagination modes.
const (
	// ModeClient means more filtered results are already in memory than are
	// displayed; the next page is served without a network fetch.
	ModeClient PaginationMode = "client"
	// ModeServer means growing the display requires fetching from the backend.
	ModeServer PaginationMode = "server"
)

// Strategy is the decision returned by LoadMore.
type Strategy string

// Load-more strategies.
const (
	StrategyNone           Strategy = "none"
	StrategyClientPaginate Strategy = "client-paginate"
	StrategyServerFetch    Strategy = "server-fetch"
)

// State is the canonical, observable state of a feed view. Snapshots handed
// to subscribers and GetState callers own their slices; mutating them does
// not affect the manager.
type State struct {
	// AllPosts is every post fetched from the server so far, deduplicated by
	// ID, in fetch order.
	AllPosts []model.Post
	// DisplayPosts is the filtered and sorted view over AllPosts, recomputed
	// whenever AllPosts or Filters change.
	DisplayPosts []model.Post
	// PaginatedPosts is the prefix of DisplayPosts currently visible, bounded
	// by CurrentPage*PageSize.
	PaginatedPosts []model.Post

	TotalPostsCount int
	CurrentPage     int
	PageSize        int
	HasMorePosts    bool

	// LastServerPage is the highest recency/creator page merged so far; the
	// next server fetch asks for LastServerPage+1.
	LastServerPage int
	// SearchOffset is how many server-side search results have been merged;
	// the next search fetch starts here.
	SearchOffset int

	PaginationMode  PaginationMode
	FetchInProgress bool
	IsLoadingMore   bool
	IsSearchActive  bool
	Filters         model.SearchFilters
}

// Decision is the outcome of consulting LoadMore.
type Decision struct {
	CanLoadMore bool
	Strategy    Strategy
	// NextPage is the server page to request on server-fetch (recency or
	// creator pagination).
	NextPage int
	// NextOffset is the result offset to request on server-fetch when a text
	// query is active.
	NextOffset int
	// Generation identifies the filter context this decision was made in. A
	// fetch resolving under a different generation must be discarded.
	Generation uint64
}

// UpdatePostsParams controls a single UpdatePosts mutation.
type UpdatePostsParams struct {
	NewPosts []model.Post
	// ResetPagination replaces AllPosts wholesale and rewinds to page 1
	// (used after create/delete/reset); otherwise NewPosts are appended and
	// deduplicated.
	ResetPagination bool
	// TotalCount and HasMore update server-reported metadata when non-nil.
	TotalCount *int
	HasMore    *bool
	// ServerPage records the server page these posts came from.
	ServerPage int
	// FromSearch advances SearchOffset by len(NewPosts).
	FromSearch bool
	// AdvancePage reveals one more page after the merge. Set by the
	// load-more handler when completing a server fetch.
	AdvancePage bool
	// Generation, when non-nil, must equal the manager's current generation
	// or the whole merge is rejected. Server fetches carry the generation of
	// the decision that started them so results resolving after a search or
	// reset cannot leak into the new filter context.
	Generation *uint64
}

// FilterPatch is a partial filter update. Nil fields are left unchanged; a
// field is cleared only by pointing at its zero value, never by omission.
type FilterPatch struct {
	CreatorID       *string
	CreatorUsername *string
	PostType        *model.PostType
	TimeRange       *model.TimeRange
	SortBy          *model.SortBy
}

type subscriber struct {
	id int
	fn func(State)
}

// Manager owns PaginationState. All mutation is funneled through its methods
// and serialized by a mutex; it performs no network I/O itself. Reads go
// through GetState or Subscribe.
type Manager struct {
	mu      sync.Mutex
	engine  *Engine
	log     *slog.Logger
	state   State
	gen     uint64
	subs    []subscriber
	nextSub int
}

// NewManager creates a Manager with the given page size (DefaultPageSize if
// zero or negative). A nil engine gets a wall-clock Engine; a nil logger
// falls back to slog.Default.
func NewManager(pageSize int, engine *Engine, log *slog.Logger) *Manager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if engine == nil {
		engine = NewEngine()
	}
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{engine: engine, log: log}
	m.state = State{CurrentPage: 1, PageSize: pageSize, PaginationMode: ModeServer}
	return m
}

// GetState returns a snapshot of the current state.
func (m *Manager) GetState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Generation returns the current filter-context generation. It increments on
// UpdateSearch, ClearSearch, and Reset; in-flight fetches compare against it
// to detect staleness.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// Subscribe registers a callback invoked with a state snapshot after every
// mutation, in registration order. The returned function unsubscribes.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.subs = slices.DeleteFunc(m.subs, func(s subscriber) bool { return s.id == id })
	}
}

// UpdatePosts merges fetched posts into AllPosts and recomputes the derived
// views. It reports whether the merge was applied: a merge carrying a stale
// generation is rejected wholesale, checked under the same lock that guards
// the state so no filter change can slip between check and merge.
func (m *Manager) UpdatePosts(p UpdatePostsParams) bool {
	m.mu.Lock()
	if p.Generation != nil && *p.Generation != m.gen {
		m.mu.Unlock()
		return false
	}
	if p.ResetPagination {
		m.state.AllPosts = Dedupe(p.NewPosts)
		m.state.CurrentPage = 1
		m.state.LastServerPage = 0
		m.state.SearchOffset = 0
	} else {
		m.state.AllPosts = Dedupe(append(m.state.AllPosts, p.NewPosts...))
	}
	if p.TotalCount != nil {
		m.state.TotalPostsCount = *p.TotalCount
	}
	if p.HasMore != nil {
		m.state.HasMorePosts = *p.HasMore
	}
	if p.ServerPage > 0 {
		m.state.LastServerPage = p.ServerPage
	}
	if p.FromSearch {
		m.state.SearchOffset += len(p.NewPosts)
	}
	if p.AdvancePage {
		m.state.CurrentPage++
	}
	m.recomputeLocked()
	m.unlockAndNotify()
	return true
}

// UpdateSearch applies a search: query is set explicitly (an empty query
// clears it), other filter fields change only where the patch is non-nil.
// When a query is active, results from the server search path are merged into
// the candidate set. The page rewinds to 1 and the generation advances,
// invalidating any in-flight fetch.
func (m *Manager) UpdateSearch(results []model.Post, query string, patch FilterPatch, totalResults int) {
	m.mu.Lock()
	f := m.state.Filters
	f.Query = query
	if patch.CreatorID != nil {
		f.CreatorID = *patch.CreatorID
	}
	if patch.CreatorUsername != nil {
		f.CreatorUsername = *patch.CreatorUsername
	}
	if patch.PostType != nil {
		f.PostType = *patch.PostType
	}
	if patch.TimeRange != nil {
		f.TimeRange = *patch.TimeRange
	}
	if patch.SortBy != nil {
		f.SortBy = *patch.SortBy
	}
	m.state.Filters = f.Normalize()

	if m.state.Filters.Query != "" {
		m.state.AllPosts = Dedupe(append(m.state.AllPosts, results...))
		m.state.SearchOffset = len(results)
		m.state.HasMorePosts = totalResults > m.state.SearchOffset
	} else {
		m.state.SearchOffset = 0
		m.state.HasMorePosts = len(m.state.AllPosts) < m.state.TotalPostsCount
	}
	m.state.CurrentPage = 1
	m.gen++
	m.recomputeLocked()
	m.unlockAndNotify()
}

// ClearSearch drops all filters; the display reverts to the deduplicated
// fetch set in default (recent) order.
func (m *Manager) ClearSearch() {
	m.mu.Lock()
	m.state.Filters = model.SearchFilters{}
	m.state.SearchOffset = 0
	m.state.CurrentPage = 1
	m.state.HasMorePosts = len(m.state.AllPosts) < m.state.TotalPostsCount
	m.gen++
	m.recomputeLocked()
	m.unlockAndNotify()
}

// LoadMore decides how the next page is served. With hidden filtered results
// in memory it advances the page itself and reports client-paginate; with
// more rows on the server it reports server-fetch and leaves the actual fetch
// to the caller; otherwise both sources are exhausted.
func (m *Manager) LoadMore() Decision {
	m.mu.Lock()
	if len(m.state.PaginatedPosts) < len(m.state.DisplayPosts) {
		m.state.CurrentPage++
		m.recomputeLocked()
		dec := Decision{
			CanLoadMore: true,
			Strategy:    StrategyClientPaginate,
			Generation:  m.gen,
		}
		m.unlockAndNotify()
		return dec
	}

	if m.state.HasMorePosts {
		dec := Decision{
			CanLoadMore: true,
			Strategy:    StrategyServerFetch,
			NextPage:    m.state.LastServerPage + 1,
			NextOffset:  m.state.SearchOffset,
			Generation:  m.gen,
		}
		m.mu.Unlock()
		return dec
	}

	dec := Decision{Strategy: StrategyNone, Generation: m.gen}
	m.mu.Unlock()
	return dec
}

// SetLoadingState flips the fetch-in-progress flags. Setting loading twice
// without an intervening clear is refused: the flag is the mutex that keeps
// at most one fetch in flight.
func (m *Manager) SetLoadingState(loading, isLoadMore bool) error {
	m.mu.Lock()
	if loading && m.state.FetchInProgress {
		m.mu.Unlock()
		return ErrFetchInProgress
	}
	changed := m.state.FetchInProgress != loading ||
		m.state.IsLoadingMore != (loading && isLoadMore)
	m.state.FetchInProgress = loading
	m.state.IsLoadingMore = loading && isLoadMore
	if !changed {
		m.mu.Unlock()
		return nil
	}
	m.unlockAndNotify()
	return nil
}

// Reset clears fetched posts, filters, and page cursors — used after a
// mutating action invalidates the cached window.
func (m *Manager) Reset() {
	m.mu.Lock()
	pageSize := m.state.PageSize
	m.state = State{CurrentPage: 1, PageSize: pageSize, PaginationMode: ModeServer}
	m.gen++
	m.recomputeLocked()
	m.unlockAndNotify()
}

// recomputeLocked rebuilds the derived views. Invariants restored here:
// AllPosts is duplicate-free (Dedupe at every merge), PaginatedPosts is the
// prefix of DisplayPosts of length min(CurrentPage*PageSize, len), and the
// pagination mode reflects whether hidden client results remain.
func (m *Manager) recomputeLocked() {
	if m.state.CurrentPage < 1 {
		m.state.CurrentPage = 1
	}
	m.state.IsSearchActive = !m.state.Filters.IsEmpty()
	m.state.DisplayPosts = m.engine.Apply(m.state.Filters, m.state.AllPosts)

	limit := m.state.CurrentPage * m.state.PageSize
	if limit > len(m.state.DisplayPosts) {
		limit = len(m.state.DisplayPosts)
	}
	m.state.PaginatedPosts = m.state.DisplayPosts[:limit]

	if len(m.state.DisplayPosts) > limit {
		m.state.PaginationMode = ModeClient
	} else {
		m.state.PaginationMode = ModeServer
	}
}

func (m *Manager) snapshotLocked() State {
	s := m.state
	s.AllPosts = slices.Clone(s.AllPosts)
	s.DisplayPosts = slices.Clone(s.DisplayPosts)
	s.PaginatedPosts = slices.Clone(s.PaginatedPosts)
	return s
}

// unlockAndNotify snapshots state and subscribers, releases the lock, then
// notifies in registration order. Callbacks run outside the lock so they may
// call GetState; a panicking subscriber is isolated and does not prevent the
// rest from being notified.
func (m *Manager) unlockAndNotify() {
	snap := m.snapshotLocked()
	subs := slices.Clone(m.subs)
	m.mu.Unlock()

	for _, s := range subs {
		m.safeNotify(s, snap)
	}
}

func (m *Manager) safeNotify(s subscriber, snap State) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("feed subscriber panicked", "subscriber_id", s.id, "panic", r)
		}
	}()
	s.fn(snap)
}
