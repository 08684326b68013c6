package domain

// DefaultMaxPerAuthor is the per-author cap applied to ranked feeds.
const DefaultMaxPerAuthor = 2

// Diversify drops every post by an author who already has maxPerAuthor
// posts earlier in the sequence. Relative order is preserved and dropped
// posts are not deferred anywhere.
func Diversify(posts []ScoredPost, maxPerAuthor int) []ScoredPost {
	if maxPerAuthor <= 0 {
		maxPerAuthor = DefaultMaxPerAuthor
	}
	seen := make(map[string]int)
	out := make([]ScoredPost, 0, len(posts))
	for _, p := range posts {
		if seen[p.Post.AuthorID] >= maxPerAuthor {
			continue
		}
		seen[p.Post.AuthorID]++
		out = append(out, p)
	}
	return out
}
