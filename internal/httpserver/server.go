// Package httpserver exposes the community feed over a JSON HTTP API.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DeepBeatAI/ai-music-community-sub011/internal/config"
	"github.com/DeepBeatAI/ai-music-community-sub011/internal/feed"
	"github.com/DeepBeatAI/ai-music-community-sub011/internal/metrics"
	"github.com/DeepBeatAI/ai-music-community-sub011/internal/model"
	"github.com/DeepBeatAI/ai-music-community-sub011/internal/storage"
)

const maxPageSize = 100

// Server is the HTTP server for the feed API.
type Server struct {
	cfg        *config.Config
	store      storage.Storage
	engine     *feed.Engine
	collector  *metrics.Collector
	log        *slog.Logger
	httpServer *http.Server
}

// NewServer creates the HTTP server and wires up all routes. The gatherer
// backs the /metrics scrape endpoint.
func NewServer(cfg *config.Config, store storage.Storage, collector *metrics.Collector, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		engine:    feed.NewEngine(),
		collector: collector,
		log:       log,
	}

	r := chi.NewRouter()
	r.Use(s.withObservability)
	r.Use(s.withCORS)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	r.Route("/api", func(r chi.Router) {
		r.Get("/posts", s.handleListPosts)
		r.Post("/posts", s.handleCreatePost)
		r.Get("/posts/search", s.handleSearch)
		r.Get("/posts/{postID}", s.handleGetPost)
		r.Delete("/posts/{postID}", s.handleDeletePost)
		r.Post("/posts/{postID}/like", s.handleLikePost)
		r.Get("/creators/{creatorID}/posts", s.handleCreatorPosts)
	})

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.log.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	pageSize, err := queryInt(r, "pageSize", s.cfg.PageSize)
	if err != nil || pageSize < 1 || pageSize > maxPageSize {
		writeError(w, http.StatusBadRequest, "pageSize must be between 1 and 100")
		return
	}

	res, err := s.store.FetchPosts(r.Context(), page, pageSize)
	if err != nil {
		s.log.Error("fetch posts failed", "page", page, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch posts")
		return
	}

	s.collector.RecordFeedPage()
	writeJSON(w, http.StatusOK, feedPageResponse(res))
}

func (s *Server) handleCreatorPosts(w http.ResponseWriter, r *http.Request) {
	creatorID := chi.URLParam(r, "creatorID")
	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	pageSize, err := queryInt(r, "pageSize", s.cfg.PageSize)
	if err != nil || pageSize < 1 || pageSize > maxPageSize {
		writeError(w, http.StatusBadRequest, "pageSize must be between 1 and 100")
		return
	}

	res, err := s.store.FetchPostsByCreator(r.Context(), creatorID, page, pageSize)
	if err != nil {
		s.log.Error("fetch creator posts failed", "creator_id", creatorID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch posts")
		return
	}

	s.collector.RecordFeedPage()
	writeJSON(w, http.StatusOK, feedPageResponse(res))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := model.SearchFilters{
		Query:           q.Get("q"),
		CreatorID:       q.Get("creatorId"),
		CreatorUsername: q.Get("creatorUsername"),
		PostType:        model.PostType(q.Get("type")),
		TimeRange:       model.TimeRange(q.Get("timeRange")),
		SortBy:          model.SortBy(q.Get("sortBy")),
	}.Normalize()
	if filters.Query == "" {
		writeError(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", s.cfg.PageSize)
	if err != nil || limit < 1 || limit > maxPageSize {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	res, err := s.store.SearchContent(r.Context(), filters, offset, limit)
	if err != nil {
		s.log.Error("search failed", "query", filters.Query, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	// The store matches and windows; ordering within the window is this
	// server's responsibility. Searches rank by relevance unless the caller
	// asks for another order.
	orderBy := filters
	if q.Get("sortBy") == "" {
		orderBy.SortBy = model.SortRelevance
	} else {
		orderBy.SortBy = model.SortBy(q.Get("sortBy"))
	}
	posts := s.engine.Apply(orderBy, res.Posts)

	s.collector.RecordSearchQuery()
	writeJSON(w, http.StatusOK, searchResponse{
		Posts:        toPostJSON(posts),
		TotalResults: res.TotalResults,
	})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	post, err := req.toPost()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.CreatePost(r.Context(), post); err != nil {
		s.log.Error("create post failed", "author_id", post.AuthorID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create post")
		return
	}

	s.collector.RecordPostCreated()
	writeJSON(w, http.StatusCreated, toSinglePostJSON(*post))
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "postID")
	post, err := s.store.GetPost(r.Context(), id)
	if errors.Is(err, storage.ErrPostNotFound) {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if err != nil {
		s.log.Error("get post failed", "post_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get post")
		return
	}
	writeJSON(w, http.StatusOK, toSinglePostJSON(*post))
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "postID")
	err := s.store.DeletePost(r.Context(), id)
	if errors.Is(err, storage.ErrPostNotFound) {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if err != nil {
		s.log.Error("delete post failed", "post_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete post")
		return
	}
	s.collector.RecordPostDeleted()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLikePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "postID")
	err := s.store.LikePost(r.Context(), id)
	if errors.Is(err, storage.ErrPostNotFound) {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if err != nil {
		s.log.Error("like post failed", "post_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to like post")
		return
	}

	post, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		s.log.Error("get post after like failed", "post_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get post")
		return
	}
	s.collector.RecordLike()
	writeJSON(w, http.StatusOK, toSinglePostJSON(*post))
}

func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		s.collector.RecordHTTPStatus(wrapped.status)
		s.collector.RecordRequestLatency(duration)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", duration,
		)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSAllowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
