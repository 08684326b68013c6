package domain

import "time"

// Post is a microblog post as served by the post repository. The engine
// treats it as read-only.
type Post struct {
	// ID is opaque but sorts in creation order.
	ID string `json:"id"`

	// AuthorID is the account that wrote the post.
	AuthorID string `json:"authorId"`

	CreatedAt time.Time `json:"createdAt"`

	// Content is nil for posts without a text body (e.g. media-only posts).
	Content *string `json:"content"`

	LikeCount   int64 `json:"likeCount"`
	RepostCount int64 `json:"repostCount"`
	ReplyCount  int64 `json:"replyCount"`
	QuoteCount  int64 `json:"quoteCount"`

	IsDeleted bool `json:"isDeleted"`

	// Author is a snapshot of the author's counters joined onto the post.
	// It only feeds the ranking heuristic, so staleness is acceptable.
	Author AuthorStats `json:"author"`
}

// AuthorStats is the minimal author snapshot needed for scoring.
type AuthorStats struct {
	PostCount     int64 `json:"postCount"`
	FollowerCount int64 `json:"followerCount"`
}

// PostEvent is a post-created notification received from an event stream.
// It carries just enough to maintain the hashtag index.
type PostEvent struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
