package domain

import (
	"fmt"
	"strings"
)

// FeedType names one of the feed views served by the engine.
type FeedType string

const (
	FeedForYou    FeedType = "for-you"
	FeedFollowing FeedType = "following"
	FeedTrending  FeedType = "trending"
	FeedExplore   FeedType = "explore"
)

// FeedTypes lists every supported feed type.
var FeedTypes = []FeedType{FeedForYou, FeedFollowing, FeedTrending, FeedExplore}

// ParseFeedType validates a feed type name.
func ParseFeedType(s string) (FeedType, error) {
	for _, f := range FeedTypes {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFeed, s)
}

// ranked reports whether the feed goes through score, sort and diversify.
func (f FeedType) ranked() bool {
	return f == FeedForYou || f == FeedTrending || f == FeedExplore
}

// cacheable reports whether the head of the feed may be served from cache.
func (f FeedType) cacheable() bool {
	return f == FeedForYou
}

const (
	// DefaultLimit is the page size used when a request does not set one.
	DefaultLimit = 25

	// MaxLimit is the largest page size the engine will serve.
	MaxLimit = 100
)

// FeedRequest describes a single page request against a feed.
type FeedRequest struct {
	Feed FeedType

	// SubjectID is the viewing account. Empty means an anonymous viewer.
	SubjectID string

	// Cursor is the nextCursor of the previous page, empty for the head.
	Cursor string

	// Limit is the page size. Values outside 1..MaxLimit are clamped and
	// zero selects DefaultLimit.
	Limit int

	// Hashtag optionally restricts the for-you feed to posts mentioning it.
	Hashtag string
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// normalizeHashtag lower-cases a tag and gives it a single leading '#'.
// It returns "" for an empty tag.
func normalizeHashtag(tag string) string {
	tag = strings.TrimLeft(strings.TrimSpace(tag), "#")
	if tag == "" {
		return ""
	}
	return "#" + strings.ToLower(tag)
}

// Page is one page of an ordered result set. HasMore is true exactly when
// NextCursor is non-empty.
type Page[T any] struct {
	Data       []T
	NextCursor string
	HasMore    bool
}

func emptyPage[T any]() *Page[T] {
	return &Page[T]{Data: []T{}}
}

// ScoredPost pairs a candidate post with its rank for one request.
type ScoredPost struct {
	Post  Post    `json:"post"`
	Score float64 `json:"score"`
}

// HashtagCount is a hashtag and the number of times it was seen.
type HashtagCount struct {
	Tag   string
	Count int64
}
