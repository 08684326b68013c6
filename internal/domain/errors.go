package domain

import "errors"

var (
	// ErrUnknownFeed is returned for a feed type the engine does not serve.
	ErrUnknownFeed = errors.New("unknown feed")

	// ErrSubjectRequired is returned when a feed needs a viewer identity and
	// the request is anonymous.
	ErrSubjectRequired = errors.New("feed requires an authenticated viewer")

	// ErrPostNotFound is returned by PostRepository.GetPost for unknown ids.
	ErrPostNotFound = errors.New("post not found")

	// ErrNoHashtagIndex is returned when rebuilding without a configured index.
	ErrNoHashtagIndex = errors.New("hashtag index not configured")
)
