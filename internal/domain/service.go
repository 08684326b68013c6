package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultCacheTTL is how long a cached feed head stays valid.
	DefaultCacheTTL = 120 * time.Second

	// DefaultCacheSize is how many ranked items a cached feed head keeps.
	DefaultCacheSize = 100

	anonymousSubject = "anon"
)

// FeedService assembles feed pages. Ranked feeds go through candidate
// fetch, scoring, diversification and pagination, with the head of the
// for-you feed served through a best-effort cache. The following feed is a
// plain chronological query over the viewer's follow graph.
//
// Ranked cursors pin the candidate time range and the explore seed, not the
// engagement counts. Later pages re-score with current counts, so a post
// that gains engagement can only move toward pages already served: it is
// never repeated, but one that rises above the cursor is skipped.
//
// A FeedService holds no per-request state and is safe for concurrent use.
type FeedService struct {
	posts    PostRepository
	follows  FollowRepository
	cache    CacheStore // nil disables caching
	recorder Recorder
	logger   *slog.Logger
	tracer   trace.Tracer

	now          func() time.Time
	seed         func() uint64
	cacheTTL     time.Duration
	cacheSize    int
	maxPerAuthor int
}

// Option configures a FeedService.
type Option func(*FeedService)

// WithCache serves and stores feed heads through c.
func WithCache(c CacheStore) Option {
	return func(s *FeedService) { s.cache = c }
}

// WithRecorder reports engine events to r.
func WithRecorder(r Recorder) Option {
	return func(s *FeedService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *FeedService) { s.now = now }
}

// WithSeedSource replaces the random source of explore-feed seeds.
func WithSeedSource(seed func() uint64) Option {
	return func(s *FeedService) { s.seed = seed }
}

// WithCacheTTL sets how long cached feed heads live.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *FeedService) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithCacheSize sets how many ranked items a cached head keeps.
func WithCacheSize(n int) Option {
	return func(s *FeedService) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// WithMaxPerAuthor sets the diversification cap for ranked feeds.
func WithMaxPerAuthor(n int) Option {
	return func(s *FeedService) {
		if n > 0 {
			s.maxPerAuthor = n
		}
	}
}

// NewFeedService creates a FeedService reading from posts and follows.
func NewFeedService(posts PostRepository, follows FollowRepository, logger *slog.Logger, opts ...Option) *FeedService {
	s := &FeedService{
		posts:        posts,
		follows:      follows,
		recorder:     noopRecorder{},
		logger:       logger,
		tracer:       otel.Tracer("github.com/blackmichael/microblog-feeds/internal/domain"),
		now:          time.Now,
		seed:         rand.Uint64,
		cacheTTL:     DefaultCacheTTL,
		cacheSize:    DefaultCacheSize,
		maxPerAuthor: DefaultMaxPerAuthor,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetFeed returns one page of the requested feed. Repository failures are
// returned to the caller; cache failures never are.
func (s *FeedService) GetFeed(ctx context.Context, req FeedRequest) (*Page[Post], error) {
	ctx, span := s.tracer.Start(ctx, "FeedService.GetFeed", trace.WithAttributes(
		attribute.String("feed.type", string(req.Feed)),
		attribute.Bool("feed.cursor", req.Cursor != ""),
	))
	defer span.End()

	limit := normalizeLimit(req.Limit)

	var (
		page *Page[Post]
		err  error
	)
	switch {
	case req.Feed == FeedFollowing:
		page, err = s.followingFeed(ctx, req, limit)
	case req.Feed.ranked():
		page, err = s.rankedFeed(ctx, req, limit)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownFeed, req.Feed)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get feed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("feed.items", len(page.Data)))
	return page, nil
}

func (s *FeedService) followingFeed(ctx context.Context, req FeedRequest, limit int) (*Page[Post], error) {
	if req.SubjectID == "" {
		return nil, ErrSubjectRequired
	}

	following, err := s.follows.ListFollowingIDs(ctx, req.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("list following: %w", err)
	}
	if len(following) == 0 {
		return emptyPage[Post](), nil
	}

	filter := PostFilter{AuthorIDs: following}
	if req.Cursor != "" {
		if _, err := s.posts.GetPost(ctx, req.Cursor); err != nil {
			if errors.Is(err, ErrPostNotFound) {
				s.logger.Debug("following cursor not found", "cursor", req.Cursor)
				return emptyPage[Post](), nil
			}
			return nil, fmt.Errorf("resolve cursor: %w", err)
		}
		filter.IDBefore = req.Cursor
	}

	posts, err := s.posts.QueryPosts(ctx, filter, limit+1)
	if err != nil {
		return nil, fmt.Errorf("query following posts: %w", err)
	}
	s.recorder.CandidatesFetched(FeedFollowing, len(posts))

	data, hasMore := paginate(posts, limit)
	page := &Page[Post]{Data: data, HasMore: hasMore}
	if hasMore {
		page.NextCursor = data[len(data)-1].ID
	}
	return page, nil
}

// cachedHead is the cached form of a ranked feed head. AsOf and Seed let
// cursors issued from a cache hit rebuild the same snapshot. Truncated is
// set when the snapshot held more items than were cached.
type cachedHead struct {
	AsOf      int64        `json:"asOf"`
	Seed      uint64       `json:"seed"`
	Truncated bool         `json:"truncated,omitempty"`
	Items     []ScoredPost `json:"items"`
}

func (s *FeedService) rankedFeed(ctx context.Context, req FeedRequest, limit int) (*Page[Post], error) {
	if req.Cursor != "" {
		cur, err := decodeRankedCursor(req.Cursor)
		if err != nil {
			s.logger.Debug("invalid feed cursor", "feed", req.Feed, "cursor", req.Cursor, "error", err)
			return emptyPage[Post](), nil
		}
		ranked, err := s.buildRanked(ctx, req, cur.asOf(), cur.Seed)
		if err != nil {
			return nil, err
		}
		return rankedPage(itemsAfter(ranked, cur), cur.AsOf, cur.Seed, limit, false), nil
	}

	useCache := req.Feed.cacheable() && s.cache != nil
	key := cacheKey(req)
	if useCache {
		head, ok := s.readHead(ctx, req.Feed, key)
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("feed.cache_hit", ok))
		if ok {
			return rankedPage(head.Items, head.AsOf, head.Seed, limit, head.Truncated), nil
		}
	}

	asOf := s.now().UTC().Truncate(time.Millisecond)
	seed := s.seed()
	ranked, err := s.buildRanked(ctx, req, asOf, seed)
	if err != nil {
		return nil, err
	}

	if useCache {
		head := cachedHead{AsOf: asOf.UnixMilli(), Seed: seed, Items: ranked}
		if len(ranked) > s.cacheSize {
			head.Items = ranked[:s.cacheSize]
			head.Truncated = true
		}
		s.writeHead(ctx, req.Feed, key, head)
	}
	return rankedPage(ranked, asOf.UnixMilli(), seed, limit, false), nil
}

// buildRanked runs fetch, score, sort and diversify for a snapshot.
func (s *FeedService) buildRanked(ctx context.Context, req FeedRequest, asOf time.Time, seed uint64) ([]ScoredPost, error) {
	posts, err := s.posts.QueryPosts(ctx, candidateFilter(req, asOf), candidateCap)
	if err != nil {
		s.logger.Error("candidate query failed", "feed", req.Feed, "error", err)
		return nil, fmt.Errorf("query %s candidates: %w", req.Feed, err)
	}
	s.recorder.CandidatesFetched(req.Feed, len(posts))

	return Diversify(rankCandidates(req.Feed, posts, asOf, seed), s.maxPerAuthor), nil
}

// rankedPage cuts one page from items. truncated marks items as a prefix of
// a longer ranked sequence.
func rankedPage(items []ScoredPost, asOf int64, seed uint64, limit int, truncated bool) *Page[Post] {
	window, hasMore := paginate(items, limit)
	if !hasMore && truncated && len(window) > 0 {
		hasMore = true
	}
	page := &Page[Post]{Data: make([]Post, len(window)), HasMore: hasMore}
	for i, item := range window {
		page.Data[i] = item.Post
	}
	if hasMore {
		last := window[len(window)-1]
		page.NextCursor = encodeRankedCursor(rankedCursor{
			AsOf:   asOf,
			Seed:   seed,
			Score:  last.Score,
			PostID: last.Post.ID,
		})
	}
	return page
}

func cacheKey(req FeedRequest) string {
	subject := req.SubjectID
	if subject == "" {
		subject = anonymousSubject
	}
	key := "feed:" + string(req.Feed) + ":" + subject
	if tag := normalizeHashtag(req.Hashtag); tag != "" {
		key += ":" + tag
	}
	return key
}

func (s *FeedService) readHead(ctx context.Context, feed FeedType, key string) (cachedHead, bool) {
	var head cachedHead
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("feed cache read failed", "feed", feed, "key", key, "error", err)
		s.recorder.CacheLookup(feed, CacheError)
		return head, false
	}
	if !ok {
		s.recorder.CacheLookup(feed, CacheMiss)
		return head, false
	}
	if err := json.Unmarshal([]byte(raw), &head); err != nil {
		s.logger.Warn("feed cache entry unreadable", "feed", feed, "key", key, "error", err)
		s.recorder.CacheLookup(feed, CacheError)
		return head, false
	}
	s.recorder.CacheLookup(feed, CacheHit)
	return head, true
}

func (s *FeedService) writeHead(ctx context.Context, feed FeedType, key string, head cachedHead) {
	b, err := json.Marshal(head)
	if err == nil {
		err = s.cache.Set(ctx, key, string(b), s.cacheTTL)
	}
	if err != nil {
		s.logger.Warn("feed cache write failed", "feed", feed, "key", key, "error", err)
		s.recorder.CacheWriteFailed(feed)
	}
}
