package domain

import (
	"context"
	"time"
)

// PostFilter narrows a post query. Zero values mean "no constraint".
// Deleted posts are always excluded.
type PostFilter struct {
	// CreatedAfter keeps posts created strictly after this instant.
	CreatedAfter time.Time

	// CreatedAtOrBefore keeps posts created at or before this instant.
	CreatedAtOrBefore time.Time

	// AuthorIDs keeps posts written by one of these accounts. A nil slice
	// means any author.
	AuthorIDs []string

	// ContentContains keeps posts whose content contains this text,
	// compared case-insensitively.
	ContentContains string

	// IDBefore keeps posts whose id sorts strictly before this id.
	IDBefore string

	// HasContent keeps posts that have a non-null content body.
	HasContent bool
}

// PostRepository reads posts. Results are ordered by creation time
// descending, ties broken by id descending.
type PostRepository interface {
	// QueryPosts returns at most limit non-deleted posts matching filter.
	QueryPosts(ctx context.Context, filter PostFilter, limit int) ([]Post, error)

	// GetPost returns a post by id whether or not it is deleted, or
	// ErrPostNotFound.
	GetPost(ctx context.Context, id string) (Post, error)
}

// FollowRepository reads the follow graph.
type FollowRepository interface {
	// ListFollowingIDs returns the ids of the accounts accountID follows.
	ListFollowingIDs(ctx context.Context, accountID string) ([]string, error)
}

// ScoredMember is one entry of a sorted set.
type ScoredMember struct {
	Member string
	Score  float64
}

// CacheStore is a best-effort key/value store with TTLs and a sorted-set
// read. Any error means the store is unavailable; callers must degrade
// rather than fail.
type CacheStore interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// ZRevRangeWithScores returns the members of the sorted set at key
	// ranked start..stop (inclusive) by descending score.
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)
}

// HashtagIndex maintains the trending-hashtag sorted set read by the
// hashtag aggregator.
type HashtagIndex interface {
	// IncrementHashtags adds one to the count of every tag occurrence.
	IncrementHashtags(ctx context.Context, tags []string) error

	// ReplaceHashtags swaps the whole set for counts.
	ReplaceHashtags(ctx context.Context, counts []HashtagCount) error
}

// CacheOutcome classifies a feed cache lookup.
type CacheOutcome string

const (
	CacheHit   CacheOutcome = "hit"
	CacheMiss  CacheOutcome = "miss"
	CacheError CacheOutcome = "error"
)

// Recorder receives engine events for observability.
type Recorder interface {
	CacheLookup(feed FeedType, outcome CacheOutcome)
	CacheWriteFailed(feed FeedType)
	CandidatesFetched(feed FeedType, n int)
	HashtagFallback()
}

type noopRecorder struct{}

func (noopRecorder) CacheLookup(FeedType, CacheOutcome) {}
func (noopRecorder) CacheWriteFailed(FeedType)          {}
func (noopRecorder) CandidatesFetched(FeedType, int)    {}
func (noopRecorder) HashtagFallback()                   {}

// StreamCursorRepository persists event-stream positions so subscribers
// can resume after a restart.
type StreamCursorRepository interface {
	// GetCursor returns the last saved position for service, or 0.
	GetCursor(ctx context.Context, service string) (int64, error)

	// UpdateCursor saves the position for service.
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}
