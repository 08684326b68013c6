package domain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// rankedCursor pins a ranked feed to the snapshot that produced its first
// page and marks the last item served.
type rankedCursor struct {
	AsOf   int64   `json:"t"` // unix millis
	Seed   uint64  `json:"s"`
	Score  float64 `json:"v"`
	PostID string  `json:"p"`
}

func (c rankedCursor) asOf() time.Time {
	return time.UnixMilli(c.AsOf).UTC()
}

func encodeRankedCursor(c rankedCursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeRankedCursor(s string) (rankedCursor, error) {
	var c rankedCursor
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("decode cursor: %w", err)
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("unmarshal cursor: %w", err)
	}
	if c.PostID == "" || c.AsOf <= 0 {
		return c, errors.New("cursor is missing its position")
	}
	return c, nil
}

// itemsAfter returns the items of a ranked sequence that sort strictly
// after the cursor position, in order.
func itemsAfter(ranked []ScoredPost, c rankedCursor) []ScoredPost {
	out := make([]ScoredPost, 0, len(ranked))
	for _, p := range ranked {
		if p.Post.ID == c.PostID || rankedBefore(p, c.Score, c.PostID) {
			continue
		}
		out = append(out, p)
	}
	return out
}
