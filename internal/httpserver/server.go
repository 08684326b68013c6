package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/blackmichael/microblog-feeds/internal/domain"
)

// Server is the HTTP server that serves feed and hashtag endpoints.
type Server struct {
	feedService    *domain.FeedService
	hashtagService *domain.HashtagService
	auth           *Authenticator
	logger         *slog.Logger
	handler        http.Handler
	httpServer     *http.Server
}

// NewServer creates a new HTTP server listening on port. metrics may be nil.
func NewServer(
	port int,
	feedService *domain.FeedService,
	hashtagService *domain.HashtagService,
	auth *Authenticator,
	metrics http.Handler,
	logger *slog.Logger,
) *Server {
	s := &Server{
		feedService:    feedService,
		hashtagService: hashtagService,
		auth:           auth,
		logger:         logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /feeds/{feedType}", s.handleGetFeed)
	mux.HandleFunc("GET /hashtags/trending", s.handleTrendingHashtags)
	mux.HandleFunc("GET /health", s.handleHealth)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	s.handler = otelhttp.NewHandler(withLogging(logger, mux), "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// postView is the wire form of a post.
type postView struct {
	ID          string  `json:"id"`
	AuthorID    string  `json:"authorId"`
	CreatedAt   string  `json:"createdAt"`
	Content     *string `json:"content"`
	LikeCount   int64   `json:"likeCount"`
	RepostCount int64   `json:"repostCount"`
	ReplyCount  int64   `json:"replyCount"`
	QuoteCount  int64   `json:"quoteCount"`
}

type hashtagView struct {
	Hashtag string `json:"hashtag"`
	Count   int64  `json:"count"`
}

type pagination struct {
	NextCursor *string `json:"nextCursor"`
	HasMore    bool    `json:"hasMore"`
}

type pageResponse[T any] struct {
	Data       []T        `json:"data"`
	Pagination pagination `json:"pagination"`
}

func newPagination(nextCursor string, hasMore bool) pagination {
	p := pagination{HasMore: hasMore}
	if nextCursor != "" {
		p.NextCursor = &nextCursor
	}
	return p
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := domain.ParseFeedType(r.PathValue("feedType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	subject, err := s.auth.Subject(r)
	if err != nil {
		s.logger.Warn("rejected bearer token", "error", err)
		writeError(w, http.StatusUnauthorized, "AuthRequired", "invalid bearer token")
		return
	}

	req := domain.FeedRequest{
		Feed:      feed,
		SubjectID: subject,
		Cursor:    r.URL.Query().Get("cursor"),
		Limit:     limit,
		Hashtag:   r.URL.Query().Get("hashtag"),
	}

	page, err := s.feedService.GetFeed(r.Context(), req)
	switch {
	case errors.Is(err, domain.ErrSubjectRequired):
		writeError(w, http.StatusUnauthorized, "AuthRequired", "this feed requires an authenticated viewer")
		return
	case errors.Is(err, domain.ErrUnknownFeed):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	case err != nil:
		s.logger.Error("failed to get feed",
			"feed", feed,
			"limit", limit,
			"cursor", req.Cursor,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to load feed")
		return
	}

	s.logger.Info("feed served", "feed", feed, "posts_returned", len(page.Data), "has_more", page.HasMore)

	resp := pageResponse[postView]{
		Data:       make([]postView, len(page.Data)),
		Pagination: newPagination(page.NextCursor, page.HasMore),
	}
	for i, p := range page.Data {
		resp.Data[i] = postView{
			ID:          p.ID,
			AuthorID:    p.AuthorID,
			CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339Nano),
			Content:     p.Content,
			LikeCount:   p.LikeCount,
			RepostCount: p.RepostCount,
			ReplyCount:  p.ReplyCount,
			QuoteCount:  p.QuoteCount,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrendingHashtags(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	page, err := s.hashtagService.TrendingHashtags(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to get trending hashtags", "limit", limit, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to load hashtags")
		return
	}

	resp := pageResponse[hashtagView]{
		Data:       make([]hashtagView, len(page.Data)),
		Pagination: newPagination("", false),
	}
	for i, h := range page.Data {
		resp.Data[i] = hashtagView{Hashtag: h.Tag, Count: h.Count}
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseLimit reads the limit query parameter, writing a 400 when it is not
// an integer in 1..MaxLimit.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return domain.DefaultLimit, true
	}
	limit, err := strconv.Atoi(l)
	if err != nil || limit < 1 || limit > domain.MaxLimit {
		writeError(w, http.StatusBadRequest, "InvalidRequest",
			fmt.Sprintf("limit must be between 1 and %d", domain.MaxLimit))
		return 0, false
	}
	return limit, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
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
