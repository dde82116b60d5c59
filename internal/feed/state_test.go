package feed

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/DeepBeatAI/ai-music-community-sub011/internal/model"
)

func newTestManager(pageSize int) *Manager {
	return NewManager(pageSize, fixedEngine(), nil)
}

// makeFeed builds n posts with descending CreatedAt, ids "1".."n".
func makeFeed(n int) []model.Post {
	posts := make([]model.Post, n)
	for i := 0; i < n; i++ {
		posts[i] = model.Post{
			ID:        fmt.Sprintf("%d", i+1),
			AuthorID:  "u1",
			Content:   fmt.Sprintf("post %d", i+1),
			PostType:  model.PostTypeText,
			CreatedAt: filterNow.Add(-time.Duration(i) * time.Minute),
		}
	}
	return posts
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestUpdatePostsMergesAndDedupes(t *testing.T) {
	m := newTestManager(5)
	feed := makeFeed(8)

	m.UpdatePosts(UpdatePostsParams{
		NewPosts:   feed[:5],
		TotalCount: intPtr(8),
		HasMore:    boolPtr(true),
		ServerPage: 1,
	})
	// Overlapping second page: post 5 appears twice.
	m.UpdatePosts(UpdatePostsParams{
		NewPosts:   feed[4:8],
		HasMore:    boolPtr(false),
		ServerPage: 2,
	})

	s := m.GetState()
	if got := idsOf(s.AllPosts); len(got) != 8 {
		t.Fatalf("AllPosts ids = %v, want 8 unique", got)
	}
	if s.HasMorePosts {
		t.Error("HasMorePosts = true, want false")
	}
	if s.TotalPostsCount != 8 {
		t.Errorf("TotalPostsCount = %d, want 8", s.TotalPostsCount)
	}
	if s.LastServerPage != 2 {
		t.Errorf("LastServerPage = %d, want 2", s.LastServerPage)
	}
}

func TestPaginatedPostsIsPrefixOfDisplay(t *testing.T) {
	m := newTestManager(5)
	m.UpdatePosts(UpdatePostsParams{NewPosts: makeFeed(12)})

	s := m.GetState()
	if len(s.PaginatedPosts) != 5 {
		t.Fatalf("PaginatedPosts length = %d, want 5", len(s.PaginatedPosts))
	}
	if diff := cmp.Diff(s.DisplayPosts[:5], s.PaginatedPosts); diff != "" {
		t.Errorf("PaginatedPosts is not a prefix of DisplayPosts (-display +paginated):\n%s", diff)
	}
	if s.PaginationMode != ModeClient {
		t.Errorf("PaginationMode = %q, want %q (hidden results in memory)", s.PaginationMode, ModeClient)
	}
}

func TestLoadMoreClientPaginate(t *testing.T) {
	m := newTestManager(5)
	m.UpdatePosts(UpdatePostsParams{NewPosts: makeFeed(12), HasMore: boolPtr(false)})

	dec := m.LoadMore()
	if !dec.CanLoadMore || dec.Strategy != StrategyClientPaginate {
		t.Fatalf("LoadMore() = %+v, want client-paginate", dec)
	}
	s := m.GetState()
	if s.CurrentPage != 2 {
		t.Errorf("CurrentPage = %d, want 2", s.CurrentPage)
	}
	if len(s.PaginatedPosts) != 10 {
		t.Errorf("PaginatedPosts length = %d, want 10", len(s.PaginatedPosts))
	}

	// Third step drains the remainder, after which only the server is left.
	dec = m.LoadMore()
	if dec.Strategy != StrategyClientPaginate {
		t.Fatalf("LoadMore() = %+v, want client-paginate", dec)
	}
	if got := len(m.GetState().PaginatedPosts); got != 12 {
		t.Errorf("PaginatedPosts length = %d, want 12", got)
	}

	dec = m.LoadMore()
	if dec.CanLoadMore || dec.Strategy != StrategyNone {
		t.Errorf("LoadMore() at end = %+v, want none", dec)
	}
}

func TestLoadMoreServerFetchDecision(t *testing.T) {
	m := newTestManager(5)
	m.UpdatePosts(UpdatePostsParams{
		NewPosts:   makeFeed(5),
		TotalCount: intPtr(40),
		HasMore:    boolPtr(true),
		ServerPage: 1,
	})

	dec := m.LoadMore()
	if !dec.CanLoadMore || dec.Strategy != StrategyServerFetch {
		t.Fatalf("LoadMore() = %+v, want server-fetch", dec)
	}
	if dec.NextPage != 2 {
		t.Errorf("NextPage = %d, want 2", dec.NextPage)
	}
	// The decision itself must not advance the page; the caller fetches first.
	if got := m.GetState().CurrentPage; got != 1 {
		t.Errorf("CurrentPage = %d, want 1", got)
	}
}

func TestCurrentPageMonotonicWithinFilterSession(t *testing.T) {
	m := newTestManager(3)
	m.UpdatePosts(UpdatePostsParams{NewPosts: makeFeed(20), HasMore: boolPtr(false)})

	lastPage := m.GetState().CurrentPage
	lastVisible := len(m.GetState().PaginatedPosts)
	for i := 0; i < 10; i++ {
		m.LoadMore()
		s := m.GetState()
		if s.CurrentPage < lastPage {
			t.Fatalf("CurrentPage decreased: %d -> %d", lastPage, s.CurrentPage)
		}
		if len(s.PaginatedPosts) < lastVisible {
			t.Fatalf("PaginatedPosts shrank: %d -> %d", lastVisible, len(s.PaginatedPosts))
		}
		lastPage = s.CurrentPage
		lastVisible = len(s.PaginatedPosts)
	}
}

func TestUpdateSearchMergesFiltersAndResetsPage(t *testing.T) {
	m := newTestManager(5)
	m.UpdatePosts(UpdatePostsParams{NewPosts: makeFeed(12)})
	m.LoadMore() // page 2

	audio := model.PostTypeAudio
	m.UpdateSearch(nil, "", FilterPatch{PostType: &audio}, 0)

	s := m.GetState()
	if s.CurrentPage != 1 {
		t.Errorf("CurrentPage after UpdateSearch = %d, want 1", s.CurrentPage)
	}
	if !s.IsSearchActive {
		t.Error("IsSearchActive = false, want true")
	}
	if s.Filters.PostType != model.PostTypeAudio {
		t.Errorf("Filters.PostType = %q, want audio", s.Filters.PostType)
	}

	// A later patch that omits PostType must preserve it (explicit-clear-only
	// merge), and a patch pointing at the zero value must clear it.
	week := model.TimeRangeWeek
	m.UpdateSearch(nil, "", FilterPatch{TimeRange: &week}, 0)
	if got := m.GetState().Filters.PostType; got != model.PostTypeAudio {
		t.Errorf("PostType after unrelated patch = %q, want audio preserved", got)
	}

	var none model.PostType
	m.UpdateSearch(nil, "", FilterPatch{PostType: &none}, 0)
	if got := m.GetState().Filters.PostType; got != "" {
		t.Errorf("PostType after explicit clear = %q, want absent", got)
	}
}

func TestUpdateSearchWithQueryMergesResults(t *testing.T) {
	m := newTestManager(5)
	m.UpdatePosts(UpdatePostsParams{NewPosts: makeFeed(5), TotalCount: intPtr(5), HasMore: boolPtr(false)})

	results := []model.Post{
		{ID: "s1", Content: "jazz one", CreatedAt: filterNow},
		{ID: "s2", Content: "jazz two", CreatedAt: filterNow.Add(-time.Minute)},
	}
	m.UpdateSearch(results, "jazz", FilterPatch{}, 10)

	s := m.GetState()
	if len(s.AllPosts) != 7 {
		t.Errorf("AllPosts length = %d, want 7 (feed + search results)", len(s.AllPosts))
	}
	if got := idsOf(s.DisplayPosts); len(got) != 2 {
		t.Errorf("DisplayPosts ids = %v, want only the jazz matches", got)
	}
	if s.SearchOffset != 2 {
		t.Errorf("SearchOffset = %d, want 2", s.SearchOffset)
	}
	if !s.HasMorePosts {
		t.Error("HasMorePosts = false, want true (10 total search results)")
	}
}

func TestClearSearchRevertsToRecentOverAllPosts(t *testing.T) {
	m := newTestManager(10)
	feed := makeFeed(6)
	// Insert out of recency order to prove ClearSearch does not re-sort.
	m.UpdatePosts(UpdatePostsParams{NewPosts: feed, TotalCount: intPtr(6), HasMore: boolPtr(false)})

	m.UpdateSearch(nil, "post 3", FilterPatch{}, 0)
	if got := len(m.GetState().DisplayPosts); got != 1 {
		t.Fatalf("DisplayPosts during search = %d, want 1", got)
	}

	gen := m.Generation()
	m.ClearSearch()
	s := m.GetState()
	if s.IsSearchActive {
		t.Error("IsSearchActive after ClearSearch = true, want false")
	}
	if len(s.DisplayPosts) != 6 {
		t.Errorf("DisplayPosts after ClearSearch = %d, want 6", len(s.DisplayPosts))
	}
	if s.CurrentPage != 1 {
		t.Errorf("CurrentPage = %d, want 1", s.CurrentPage)
	}
	if m.Generation() == gen {
		t.Error("Generation did not advance on ClearSearch")
	}
}

func TestSetLoadingStateRefusesOverlap(t *testing.T) {
	m := newTestManager(5)

	if err := m.SetLoadingState(true, true); err != nil {
		t.Fatalf("first SetLoadingState(true): %v", err)
	}
	if err := m.SetLoadingState(true, true); !errors.Is(err, ErrFetchInProgress) {
		t.Fatalf("second SetLoadingState(true) = %v, want ErrFetchInProgress", err)
	}
	if err := m.SetLoadingState(false, false); err != nil {
		t.Fatalf("SetLoadingState(false): %v", err)
	}
	// Clearing twice is idempotent.
	if err := m.SetLoadingState(false, false); err != nil {
		t.Fatalf("repeated SetLoadingState(false): %v", err)
	}
	if err := m.SetLoadingState(true, false); err != nil {
		t.Fatalf("SetLoadingState(true) after clear: %v", err)
	}
}

func TestResetClearsEverything(t *testing.T) {
	m := newTestManager(5)
	m.UpdatePosts(UpdatePostsParams{NewPosts: makeFeed(12), TotalCount: intPtr(12), HasMore: boolPtr(true), ServerPage: 1})
	m.UpdateSearch(nil, "post", FilterPatch{}, 0)

	gen := m.Generation()
	m.Reset()

	s := m.GetState()
	if len(s.AllPosts) != 0 || len(s.DisplayPosts) != 0 || len(s.PaginatedPosts) != 0 {
		t.Errorf("Reset left posts behind: %d/%d/%d", len(s.AllPosts), len(s.DisplayPosts), len(s.PaginatedPosts))
	}
	if s.CurrentPage != 1 || s.IsSearchActive || s.LastServerPage != 0 {
		t.Errorf("Reset left cursor state behind: %+v", s)
	}
	if s.PageSize != 5 {
		t.Errorf("PageSize = %d, want preserved 5", s.PageSize)
	}
	if m.Generation() == gen {
		t.Error("Generation did not advance on Reset")
	}
}

func TestSubscribersNotifiedInOrderWithPanicIsolation(t *testing.T) {
	m := newTestManager(5)

	var order []string
	m.Subscribe(func(State) { order = append(order, "first") })
	m.Subscribe(func(State) { panic("subscriber bug") })
	m.Subscribe(func(State) { order = append(order, "third") })

	m.UpdatePosts(UpdatePostsParams{NewPosts: makeFeed(3)})

	want := []string{"first", "third"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("notification order mismatch (-want +got):\n%s", diff)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	m := newTestManager(5)

	calls := 0
	unsub := m.Subscribe(func(State) { calls++ })

	m.UpdatePosts(UpdatePostsParams{NewPosts: makeFeed(1)})
	unsub()
	m.UpdatePosts(UpdatePostsParams{NewPosts: makeFeed(2)})

	if calls != 1 {
		t.Errorf("subscriber called %d times, want 1", calls)
	}
}

func TestSnapshotsDoNotAliasInternalState(t *testing.T) {
	m := newTestManager(5)
	m.UpdatePosts(UpdatePostsParams{NewPosts: makeFeed(3)})

	s := m.GetState()
	s.AllPosts[0].ID = "mutated"

	if got := m.GetState().AllPosts[0].ID; got == "mutated" {
		t.Error("mutating a snapshot leaked into manager state")
	}
}

func TestResetPaginationReplacesWholesale(t *testing.T) {
	m := newTestManager(5)
	m.UpdatePosts(UpdatePostsParams{NewPosts: makeFeed(12), ServerPage: 2})
	m.LoadMore()

	fresh := makeFeed(4)
	m.UpdatePosts(UpdatePostsParams{NewPosts: fresh, ResetPagination: true, TotalCount: intPtr(4), HasMore: boolPtr(false), ServerPage: 1})

	s := m.GetState()
	if len(s.AllPosts) != 4 {
		t.Errorf("AllPosts length = %d, want 4 after wholesale replace", len(s.AllPosts))
	}
	if s.CurrentPage != 1 {
		t.Errorf("CurrentPage = %d, want 1 after reset pagination", s.CurrentPage)
	}
	if s.LastServerPage != 1 {
		t.Errorf("LastServerPage = %d, want 1", s.LastServerPage)
	}
}

func TestUpdatePostsRejectsStaleGeneration(t *testing.T) {
	m := newTestManager(5)
	m.UpdatePosts(UpdatePostsParams{NewPosts: makeFeed(2)})

	stale := m.Generation()
	// A search lands after the fetch was decided but before its merge.
	m.UpdateSearch(nil, "post", FilterPatch{}, 0)

	extra := postsWithIDs([]string{"9"})
	if m.UpdatePosts(UpdatePostsParams{NewPosts: extra, Generation: &stale}) {
		t.Fatal("merge with a stale generation was applied")
	}
	if got := len(m.GetState().AllPosts); got != 2 {
		t.Errorf("AllPosts length = %d after rejected merge, want 2", got)
	}

	current := m.Generation()
	if !m.UpdatePosts(UpdatePostsParams{NewPosts: extra, Generation: &current}) {
		t.Fatal("merge with the current generation was rejected")
	}
	if got := len(m.GetState().AllPosts); got != 3 {
		t.Errorf("AllPosts length = %d after applied merge, want 3", got)
	}
}
