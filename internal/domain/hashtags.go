package domain

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

const (
	// TrendingHashtagsKey is the sorted set holding running hashtag counts.
	TrendingHashtagsKey = "trending:hashtags"

	// hashtagScanLimit bounds the fallback and rebuild scans.
	hashtagScanLimit = 1000
)

var hashtagPattern = regexp.MustCompile(`(?i)#\w+`)

// ExtractHashtags returns every hashtag occurrence in content, lower-cased
// and without the leading '#'. Repeats are kept.
func ExtractHashtags(content string) []string {
	matches := hashtagPattern.FindAllString(content, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, strings.ToLower(m[1:]))
	}
	return tags
}

// HashtagService serves the trending-hashtag list and keeps the hashtag
// index up to date.
type HashtagService struct {
	cache    CacheStore   // primary read path; nil forces the fallback
	index    HashtagIndex // nil disables indexing
	posts    PostRepository
	cursors  StreamCursorRepository
	recorder Recorder
	logger   *slog.Logger
}

// NewHashtagService creates a HashtagService. cache, index and cursors may
// be nil.
func NewHashtagService(posts PostRepository, cache CacheStore, index HashtagIndex, cursors StreamCursorRepository, recorder Recorder, logger *slog.Logger) *HashtagService {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &HashtagService{
		cache:    cache,
		index:    index,
		posts:    posts,
		cursors:  cursors,
		recorder: recorder,
		logger:   logger,
	}
}

// TrendingHashtags returns the top hashtags by count. The precomputed
// sorted set is read verbatim; when it cannot be reached the counts are
// recomputed from recent post content. The result is never paginated.
func (s *HashtagService) TrendingHashtags(ctx context.Context, limit int) (*Page[HashtagCount], error) {
	limit = normalizeLimit(limit)

	if s.cache != nil {
		members, err := s.cache.ZRevRangeWithScores(ctx, TrendingHashtagsKey, 0, int64(limit-1))
		if err == nil {
			data := make([]HashtagCount, len(members))
			for i, m := range members {
				data[i] = HashtagCount{Tag: m.Member, Count: int64(m.Score)}
			}
			return &Page[HashtagCount]{Data: data}, nil
		}
		s.logger.Warn("trending hashtag set unavailable, scanning posts", "error", err)
	}

	s.recorder.HashtagFallback()
	data, err := s.CountRecentHashtags(ctx, limit)
	if err != nil {
		return nil, err
	}
	return &Page[HashtagCount]{Data: data}, nil
}

// CountRecentHashtags counts hashtags across the most recent posts with
// content. Tags are lower-cased and '#'-prefixed, ordered by count
// descending then tag. limit <= 0 returns every tag.
func (s *HashtagService) CountRecentHashtags(ctx context.Context, limit int) ([]HashtagCount, error) {
	posts, err := s.posts.QueryPosts(ctx, PostFilter{HasContent: true}, hashtagScanLimit)
	if err != nil {
		return nil, fmt.Errorf("query recent posts: %w", err)
	}

	counts := make(map[string]int64)
	for _, p := range posts {
		if p.IsDeleted || p.Content == nil {
			continue
		}
		for _, tag := range ExtractHashtags(*p.Content) {
			counts[tag]++
		}
	}

	out := make([]HashtagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, HashtagCount{Tag: "#" + tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// IndexPost adds the hashtags of a newly created post to the index.
// Returns the number of tag occurrences indexed.
func (s *HashtagService) IndexPost(ctx context.Context, ev PostEvent) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	raw := ExtractHashtags(ev.Content)
	if len(raw) == 0 {
		return 0, nil
	}
	tags := make([]string, len(raw))
	for i, t := range raw {
		tags[i] = "#" + t
	}
	if err := s.index.IncrementHashtags(ctx, tags); err != nil {
		return 0, fmt.Errorf("increment hashtags for post %s: %w", ev.ID, err)
	}
	return len(tags), nil
}

// Rebuild recomputes the hashtag index from recent posts and replaces it.
// Returns the number of distinct tags written.
func (s *HashtagService) Rebuild(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, ErrNoHashtagIndex
	}
	counts, err := s.CountRecentHashtags(ctx, 0)
	if err != nil {
		return 0, err
	}
	if err := s.index.ReplaceHashtags(ctx, counts); err != nil {
		return 0, fmt.Errorf("replace hashtags: %w", err)
	}
	s.logger.Info("hashtag index rebuilt", "tags", len(counts))
	return len(counts), nil
}

// GetCursor retrieves the last processed event-stream position for service.
func (s *HashtagService) GetCursor(ctx context.Context, service string) (int64, error) {
	if s.cursors == nil {
		return 0, nil
	}
	return s.cursors.GetCursor(ctx, service)
}

// UpdateCursor persists the event-stream position for service.
func (s *HashtagService) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	if s.cursors == nil {
		return nil
	}
	return s.cursors.UpdateCursor(ctx, service, cursor)
}
