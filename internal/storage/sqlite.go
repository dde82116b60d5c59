package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/DeepBeatAI/ai-music-community-sub011/internal/model"
	"github.com/DeepBeatAI/ai-music-community-sub011/migrations"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreatePost inserts a new post, generating an ID and CreatedAt if unset.
func (s *SQLite) CreatePost(ctx context.Context, post *model.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	if post.PostType == "" {
		post.PostType = model.PostTypeText
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, author_username, content, post_type, audio_filename, like_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.AuthorID, post.AuthorUsername, post.Content,
		string(post.PostType), post.AudioFilename, post.LikeCount,
		post.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// GetPost returns a single post by its ID.
func (s *SQLite) GetPost(ctx context.Context, id string) (*model.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, author_id, author_username, content, post_type, audio_filename, like_count, created_at
		 FROM posts WHERE id = ?`, id,
	)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	return post, err
}

// DeletePost removes a post by its ID.
func (s *SQLite) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrPostNotFound
	}
	return nil
}

// LikePost increments a post's like count.
func (s *SQLite) LikePost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET like_count = like_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("like post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrPostNotFound
	}
	return nil
}

// FetchPosts returns one recency-ordered page of the feed. Pages are 1-based.
func (s *SQLite) FetchPosts(ctx context.Context, page, pageSize int) (model.FetchResult, error) {
	if page < 1 {
		page = 1
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&total); err != nil {
		return model.FetchResult{}, fmt.Errorf("count posts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_id, author_username, content, post_type, audio_filename, like_count, created_at
		 FROM posts
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return model.FetchResult{}, fmt.Errorf("query posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	posts, err := scanPosts(rows)
	if err != nil {
		return model.FetchResult{}, err
	}

	return model.FetchResult{
		Posts:   posts,
		HasMore: page*pageSize < total,
		Total:   total,
	}, nil
}

// FetchPostsByCreator returns one recency-ordered page of a creator's posts.
func (s *SQLite) FetchPostsByCreator(ctx context.Context, creatorID string, page, pageSize int) (model.FetchResult, error) {
	if page < 1 {
		page = 1
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE author_id = ?`, creatorID).Scan(&total); err != nil {
		return model.FetchResult{}, fmt.Errorf("count creator posts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_id, author_username, content, post_type, audio_filename, like_count, created_at
		 FROM posts
		 WHERE author_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		creatorID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return model.FetchResult{}, fmt.Errorf("query creator posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	posts, err := scanPosts(rows)
	if err != nil {
		return model.FetchResult{}, err
	}

	return model.FetchResult{
		Posts:   posts,
		HasMore: page*pageSize < total,
		Total:   total,
	}, nil
}

// SearchContent returns one window of posts matching the text query in
// content or audio filename, narrowed by any creator/type filters, ordered by
// recency. The caller applies its own deterministic sort on top.
func (s *SQLite) SearchContent(ctx context.Context, filters model.SearchFilters, offset, limit int) (model.SearchResult, error) {
	f := filters.Normalize()
	if offset < 0 {
		offset = 0
	}

	q := escapeLike(f.Query)
	conds := []string{`(content LIKE '%' || ? || '%' ESCAPE '\' OR (post_type = 'audio' AND audio_filename LIKE '%' || ? || '%' ESCAPE '\'))`}
	args := []any{q, q}
	if f.CreatorID != "" {
		conds = append(conds, `author_id = ?`)
		args = append(args, f.CreatorID)
	}
	if f.PostType != "" {
		conds = append(conds, `post_type = ?`)
		args = append(args, string(f.PostType))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE `+where, args...).Scan(&total); err != nil {
		return model.SearchResult{}, fmt.Errorf("count search results: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_id, author_username, content, post_type, audio_filename, like_count, created_at
		 FROM posts
		 WHERE `+where+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("query search results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	posts, err := scanPosts(rows)
	if err != nil {
		return model.SearchResult{}, err
	}

	return model.SearchResult{Posts: posts, TotalResults: total}, nil
}

// escapeLike escapes LIKE metacharacters so user queries match literally.
// Pairs with the ESCAPE '\' clause in SearchContent.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*model.Post, error) {
	var (
		p         model.Post
		postType  string
		createdAt string
	)
	err := row.Scan(&p.ID, &p.AuthorID, &p.AuthorUsername, &p.Content,
		&postType, &p.AudioFilename, &p.LikeCount, &createdAt)
	if err != nil {
		return nil, err
	}
	p.PostType = model.PostType(postType)
	p.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return &p, nil
}

func scanPosts(rows *sql.Rows) ([]model.Post, error) {
	var posts []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}
