package domain

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"
)

const (
	recencyHalfLifeHours = 6.0

	// minVelocityAgeHours keeps velocity finite for posts seconds old.
	minVelocityAgeHours = 0.5

	likeWeight   = 1.0
	repostWeight = 2.0
	replyWeight  = 3.0
	quoteWeight  = 2.5

	recencyShare     = 0.25
	engagementShare  = 0.20
	velocityShare    = 0.15
	authorShare      = 0.10
	baselineScore    = 0.30
	exploreNoiseSpan = 5.0
)

// ageHours is the post's age at now, clamped to zero for future timestamps.
func ageHours(createdAt, now time.Time) float64 {
	h := now.Sub(createdAt).Hours()
	if h < 0 {
		return 0
	}
	return h
}

func rawEngagement(p Post) float64 {
	return float64(p.LikeCount)*likeWeight +
		float64(p.RepostCount)*repostWeight +
		float64(p.ReplyCount)*replyWeight +
		float64(p.QuoteCount)*quoteWeight
}

// momentum is the unweighted-by-quotes engagement used by trending and explore.
func momentum(p Post) float64 {
	return float64(p.LikeCount) + 2*float64(p.RepostCount) + 3*float64(p.ReplyCount)
}

// ScorePost ranks a post for the for-you feed. It blends a 6-hour
// half-life recency decay, age-damped engagement, engagement velocity and a
// bounded author-quality term on top of a flat baseline, so every score is
// positive. The result depends only on p and now.
func ScorePost(p Post, now time.Time) float64 {
	age := ageHours(p.CreatedAt, now)
	raw := rawEngagement(p)

	recency := math.Pow(0.5, age/recencyHalfLifeHours)
	engagement := raw / math.Log10(age+2)
	velocity := raw / math.Max(age, minVelocityAgeHours)
	quality := math.Min(raw/math.Max(float64(p.Author.PostCount), 1), 1)

	return recencyShare*recency +
		engagementShare*engagement +
		velocityShare*velocity +
		authorShare*quality +
		baselineScore
}

// TrendingVelocity ranks a post for the trending feed by raw momentum per
// hour of age.
func TrendingVelocity(p Post, now time.Time) float64 {
	return momentum(p) / math.Max(ageHours(p.CreatedAt, now), minVelocityAgeHours)
}

// ExploreScore ranks a post for the explore feed: momentum plus a uniform
// perturbation in [0, 5). The perturbation depends only on seed and the
// post id, so a post keeps its score whatever else is in the candidate set.
func ExploreScore(p Post, seed uint64) float64 {
	h := fnv.New64a()
	h.Write([]byte(p.ID))
	rng := rand.New(rand.NewPCG(seed, h.Sum64()))
	return momentum(p) + rng.Float64()*exploreNoiseSpan
}
