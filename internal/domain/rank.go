package domain

import (
	"sort"
	"time"
)

// candidateCap bounds the repository query of every ranked feed.
const candidateCap = 200

// feedWindows is how far back each ranked feed looks for candidates.
var feedWindows = map[FeedType]time.Duration{
	FeedForYou:   24 * time.Hour,
	FeedTrending: 6 * time.Hour,
	FeedExplore:  48 * time.Hour,
}

// candidateFilter builds the single repository query for a ranked feed
// snapshot taken at asOf.
func candidateFilter(req FeedRequest, asOf time.Time) PostFilter {
	f := PostFilter{
		CreatedAfter:      asOf.Add(-feedWindows[req.Feed]),
		CreatedAtOrBefore: asOf,
	}
	if req.Feed == FeedForYou {
		f.ContentContains = normalizeHashtag(req.Hashtag)
	}
	return f
}

// rankCandidates scores posts for feed and sorts them by score descending,
// then id descending. Deleted posts and posts newer than asOf are dropped.
func rankCandidates(feed FeedType, posts []Post, asOf time.Time, seed uint64) []ScoredPost {
	scored := make([]ScoredPost, 0, len(posts))
	for _, p := range posts {
		if p.IsDeleted || p.CreatedAt.After(asOf) {
			continue
		}
		var score float64
		switch feed {
		case FeedTrending:
			score = TrendingVelocity(p, asOf)
		case FeedExplore:
			score = ExploreScore(p, seed)
		default:
			score = ScorePost(p, asOf)
		}
		scored = append(scored, ScoredPost{Post: p, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return rankedBefore(scored[i], scored[j].Score, scored[j].Post.ID)
	})
	return scored
}

// rankedBefore reports whether p sorts ahead of the (score, id) position.
func rankedBefore(p ScoredPost, score float64, id string) bool {
	if p.Score != score {
		return p.Score > score
	}
	return p.Post.ID > id
}
