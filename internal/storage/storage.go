// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"github.com/DeepBeatAI/ai-music-community-sub011/internal/model"
)

// ErrPostNotFound is returned when a post ID does not exist.
var ErrPostNotFound = errors.New("storage: post not found")

// Storage is the interface for all persistence operations. Its fetch methods
// form the post-repository collaborator consumed by the feed core (pages are
// 1-based, ordered by recency; overlap under concurrent writes is tolerated
// because the feed deduplicates on merge).
type Storage interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id string) (*model.Post, error)
	DeletePost(ctx context.Context, id string) error
	LikePost(ctx context.Context, id string) error

	FetchPosts(ctx context.Context, page, pageSize int) (model.FetchResult, error)
	FetchPostsByCreator(ctx context.Context, creatorID string, page, pageSize int) (model.FetchResult, error)
	SearchContent(ctx context.Context, filters model.SearchFilters, offset, limit int) (model.SearchResult, error)

	Close() error
}
