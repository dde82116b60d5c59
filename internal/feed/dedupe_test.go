package feed

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/DeepBeatAI/ai-music-community-sub011/internal/model"
)

func TestDedupe(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "empty input",
			in:   nil,
			want: nil,
		},
		{
			name: "already unique is a no-op",
			in:   []string{"a", "b", "c"},
			want: []string{"a", "b", "c"},
		},
		{
			name: "first occurrence wins",
			in:   []string{"a", "b", "a", "c", "b"},
			want: []string{"a", "b", "c"},
		},
		{
			name: "overlapping pages",
			in:   []string{"p1", "p2", "p3", "p3", "p4", "p5"},
			want: []string{"p1", "p2", "p3", "p4", "p5"},
		},
		{
			name: "all duplicates",
			in:   []string{"x", "x", "x"},
			want: []string{"x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := idsOf(Dedupe(postsWithIDs(tt.in)))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Dedupe() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDedupeIdempotent(t *testing.T) {
	in := postsWithIDs([]string{"a", "b", "a", "c", "c", "b"})

	once := Dedupe(in)
	twice := Dedupe(once)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("Dedupe(Dedupe(xs)) != Dedupe(xs) (-once +twice):\n%s", diff)
	}
}

func TestDedupeKeepsFirstOccurrenceData(t *testing.T) {
	in := []model.Post{
		{ID: "a", Content: "original"},
		{ID: "a", Content: "refetched"},
	}

	got := Dedupe(in)
	if len(got) != 1 || got[0].Content != "original" {
		t.Errorf("Dedupe() = %+v, want single post with original content", got)
	}
}

func postsWithIDs(ids []string) []model.Post {
	posts := make([]model.Post, len(ids))
	for i, id := range ids {
		posts[i] = model.Post{ID: id}
	}
	return posts
}

func idsOf(posts []model.Post) []string {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}
