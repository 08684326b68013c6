package firehose

import (
	"encoding/json"
	"fmt"

	"github.com/blackmichael/microblog-feeds/internal/domain"
)

const (
	kindPost        = "post"
	operationCreate = "create"
)

// streamEvent is one frame of the post event stream.
type streamEvent struct {
	Seq       int64             `json:"seq"`
	Kind      string            `json:"kind"`
	Operation string            `json:"operation"`
	Post      *domain.PostEvent `json:"post,omitempty"`
}

// isPostCreate reports whether the event announces a new post with a body.
func (e *streamEvent) isPostCreate() bool {
	return e.Kind == kindPost && e.Operation == operationCreate && e.Post != nil
}

func parseEvent(data []byte) (*streamEvent, error) {
	var event streamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.Kind == kindPost && event.Operation == operationCreate {
		if event.Post == nil {
			return nil, fmt.Errorf("post create event %d has no post", event.Seq)
		}
		if event.Post.ID == "" {
			return nil, fmt.Errorf("post create event %d has no post id", event.Seq)
		}
	}
	return &event, nil
}
