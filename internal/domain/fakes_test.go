package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var errBoom = errors.New("boom")

// memPosts is an in-memory PostRepository that applies PostFilter the way
// the SQL adapters do.
type memPosts struct {
	mu      sync.Mutex
	posts   []Post
	err     error
	queries []PostFilter
	limits  []int
	lookups int
}

func (m *memPosts) QueryPosts(_ context.Context, f PostFilter, limit int) ([]Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, f)
	m.limits = append(m.limits, limit)
	if m.err != nil {
		return nil, m.err
	}

	authors := map[string]bool{}
	for _, a := range f.AuthorIDs {
		authors[a] = true
	}

	var out []Post
	for _, p := range m.posts {
		switch {
		case p.IsDeleted:
		case !f.CreatedAfter.IsZero() && !p.CreatedAt.After(f.CreatedAfter):
		case !f.CreatedAtOrBefore.IsZero() && p.CreatedAt.After(f.CreatedAtOrBefore):
		case f.AuthorIDs != nil && !authors[p.AuthorID]:
		case f.IDBefore != "" && p.ID >= f.IDBefore:
		case f.HasContent && p.Content == nil:
		case f.ContentContains != "" && (p.Content == nil ||
			!strings.Contains(strings.ToLower(*p.Content), strings.ToLower(f.ContentContains))):
		default:
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPosts) GetPost(_ context.Context, id string) (Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	for _, p := range m.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return Post{}, ErrPostNotFound
}

func (m *memPosts) queryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

type memFollows struct {
	following map[string][]string
	err       error
}

func (m memFollows) ListFollowingIDs(_ context.Context, accountID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.following[accountID], nil
}

type memCache struct {
	mu       sync.Mutex
	values   map[string]string
	ttls     map[string]time.Duration
	zsets    map[string][]ScoredMember
	getErr   error
	setErr   error
	zErr     error
	gets     int
	sets     int
	zranges  int
	lastStop int64
}

func newMemCache() *memCache {
	return &memCache{
		values: map[string]string{},
		ttls:   map[string]time.Duration{},
		zsets:  map[string][]ScoredMember{},
	}
}

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	c.values[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) ZRevRangeWithScores(_ context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zranges++
	c.lastStop = stop
	if c.zErr != nil {
		return nil, c.zErr
	}
	members := c.zsets[key]
	if start >= int64(len(members)) {
		return nil, nil
	}
	if stop >= int64(len(members)) {
		stop = int64(len(members)) - 1
	}
	return members[start : stop+1], nil
}

type memIndex struct {
	increments [][]string
	replaced   []HashtagCount
	err        error
}

func (m *memIndex) IncrementHashtags(_ context.Context, tags []string) error {
	if m.err != nil {
		return m.err
	}
	m.increments = append(m.increments, tags)
	return nil
}

func (m *memIndex) ReplaceHashtags(_ context.Context, counts []HashtagCount) error {
	if m.err != nil {
		return m.err
	}
	m.replaced = counts
	return nil
}

type countingRecorder struct {
	mu        sync.Mutex
	lookups   map[CacheOutcome]int
	writeErrs int
	fetched   int
	fallbacks int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{lookups: map[CacheOutcome]int{}}
}

func (r *countingRecorder) CacheLookup(_ FeedType, o CacheOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[o]++
}

func (r *countingRecorder) CacheWriteFailed(FeedType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeErrs++
}

func (r *countingRecorder) CandidatesFetched(_ FeedType, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetched += n
}

func (r *countingRecorder) HashtagFallback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks++
}

func strPtr(s string) *string { return &s }
