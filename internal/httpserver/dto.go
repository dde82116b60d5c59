package httpserver

import (
	"errors"
	"strings"
	"time"

	"github.com/DeepBeatAI/ai-music-community-sub011/internal/model"
)

type postJSON struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"authorId"`
	AuthorUsername string    `json:"authorUsername"`
	Content        string    `json:"content"`
	PostType       string    `json:"postType"`
	AudioFilename  string    `json:"audioFilename,omitempty"`
	LikeCount      int       `json:"likeCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

type feedPage struct {
	Posts      []postJSON `json:"posts"`
	HasMore    bool       `json:"hasMore"`
	TotalPosts int        `json:"totalPosts"`
}

type searchResponse struct {
	Posts        []postJSON `json:"posts"`
	TotalResults int        `json:"totalResults"`
}

type createPostRequest struct {
	AuthorID       string `json:"authorId"`
	AuthorUsername string `json:"authorUsername"`
	Content        string `json:"content"`
	PostType       string `json:"postType"`
	AudioFilename  string `json:"audioFilename"`
}

func (r createPostRequest) toPost() (*model.Post, error) {
	if strings.TrimSpace(r.AuthorID) == "" || strings.TrimSpace(r.AuthorUsername) == "" {
		return nil, errors.New("authorId and authorUsername are required")
	}

	postType := model.PostType(r.PostType)
	if postType == "" {
		postType = model.PostTypeText
	}
	switch postType {
	case model.PostTypeText:
		if strings.TrimSpace(r.Content) == "" {
			return nil, errors.New("content is required for text posts")
		}
	case model.PostTypeAudio:
		if strings.TrimSpace(r.AudioFilename) == "" {
			return nil, errors.New("audioFilename is required for audio posts")
		}
	default:
		return nil, errors.New("postType must be text or audio")
	}

	return &model.Post{
		AuthorID:       r.AuthorID,
		AuthorUsername: r.AuthorUsername,
		Content:        r.Content,
		PostType:       postType,
		AudioFilename:  r.AudioFilename,
	}, nil
}

func feedPageResponse(res model.FetchResult) feedPage {
	return feedPage{
		Posts:      toPostJSON(res.Posts),
		HasMore:    res.HasMore,
		TotalPosts: res.Total,
	}
}

func toPostJSON(posts []model.Post) []postJSON {
	out := make([]postJSON, len(posts))
	for i, p := range posts {
		out[i] = toSinglePostJSON(p)
	}
	return out
}

func toSinglePostJSON(p model.Post) postJSON {
	return postJSON{
		ID:             p.ID,
		AuthorID:       p.AuthorID,
		AuthorUsername: p.AuthorUsername,
		Content:        p.Content,
		PostType:       string(p.PostType),
		AudioFilename:  p.AudioFilename,
		LikeCount:      p.LikeCount,
		CreatedAt:      p.CreatedAt,
	}
}
