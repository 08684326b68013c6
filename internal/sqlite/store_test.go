package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blackmichael/microblog-feeds/internal/domain"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func text(s string) *string { return &s }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveAccount(ctx, "alice", domain.AuthorStats{PostCount: 40, FollowerCount: 900}))
	require.NoError(t, s.SaveAccount(ctx, "bob", domain.AuthorStats{PostCount: 3, FollowerCount: 10}))

	posts := []domain.Post{
		{ID: "p1", AuthorID: "alice", CreatedAt: base.Add(-3 * time.Hour), Content: text("morning #Go")},
		{ID: "p2", AuthorID: "bob", CreatedAt: base.Add(-2 * time.Hour), Content: text("lunch"), LikeCount: 4},
		{ID: "p3", AuthorID: "carol", CreatedAt: base.Add(-time.Hour)},
		{ID: "p4", AuthorID: "alice", CreatedAt: base.Add(-30 * time.Minute), Content: text("#go again"), ReplyCount: 2},
		{ID: "p5", AuthorID: "bob", CreatedAt: base.Add(-10 * time.Minute), Content: text("gone"), IsDeleted: true},
	}
	for _, p := range posts {
		require.NoError(t, s.SavePost(ctx, p))
	}

	require.NoError(t, s.Follow(ctx, "viewer", "alice"))
	require.NoError(t, s.Follow(ctx, "viewer", "bob"))
	require.NoError(t, s.Follow(ctx, "viewer", "bob"))
}

func ids(posts []domain.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func TestQueryPosts(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter domain.PostFilter
		limit  int
		want   []string
	}{
		{name: "all live posts newest first", limit: 10, want: []string{"p4", "p3", "p2", "p1"}},
		{name: "limit", limit: 2, want: []string{"p4", "p3"}},
		{
			name:   "created window",
			filter: domain.PostFilter{CreatedAfter: base.Add(-3 * time.Hour), CreatedAtOrBefore: base.Add(-time.Hour)},
			limit:  10,
			want:   []string{"p3", "p2"},
		},
		{name: "authors", filter: domain.PostFilter{AuthorIDs: []string{"alice"}}, limit: 10, want: []string{"p4", "p1"}},
		{name: "empty author set", filter: domain.PostFilter{AuthorIDs: []string{}}, limit: 10, want: []string{}},
		{name: "id before", filter: domain.PostFilter{IDBefore: "p3"}, limit: 10, want: []string{"p2", "p1"}},
		{name: "has content", filter: domain.PostFilter{HasContent: true}, limit: 10, want: []string{"p4", "p2", "p1"}},
		{name: "content contains any case", filter: domain.PostFilter{ContentContains: "#GO"}, limit: 10, want: []string{"p4", "p1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts, err := s.QueryPosts(ctx, tt.filter, tt.limit)
			require.NoError(t, err)
			require.Equal(t, tt.want, ids(posts))
		})
	}
}

func TestQueryPosts_MapsColumns(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	posts, err := s.QueryPosts(context.Background(), domain.PostFilter{AuthorIDs: []string{"alice", "carol"}}, 10)
	require.NoError(t, err)
	require.Len(t, posts, 3)

	p4 := posts[0]
	require.Equal(t, "p4", p4.ID)
	require.Equal(t, base.Add(-30*time.Minute), p4.CreatedAt)
	require.Equal(t, "#go again", *p4.Content)
	require.Equal(t, int64(2), p4.ReplyCount)
	require.Equal(t, domain.AuthorStats{PostCount: 40, FollowerCount: 900}, p4.Author)

	p3 := posts[1]
	require.Nil(t, p3.Content)
	require.Equal(t, domain.AuthorStats{}, p3.Author)
}

func TestGetPost(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	p, err := s.GetPost(ctx, "p5")
	require.NoError(t, err)
	require.True(t, p.IsDeleted)

	_, err = s.GetPost(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestDeletePost(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.DeletePost(ctx, "p4"))

	posts, err := s.QueryPosts(ctx, domain.PostFilter{}, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"p3", "p2", "p1"}, ids(posts))
}

func TestListFollowingIDs(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	following, err := s.ListFollowingIDs(ctx, "viewer")
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, following)

	following, err = s.ListFollowingIDs(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, following)
}

func TestCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.GetCursor(ctx, "events")
	require.NoError(t, err)
	require.Zero(t, c)

	require.NoError(t, s.UpdateCursor(ctx, "events", 41))
	require.NoError(t, s.UpdateCursor(ctx, "events", 42))

	c, err = s.GetCursor(ctx, "events")
	require.NoError(t, err)
	require.Equal(t, int64(42), c)
}

func TestNew_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "feeds.db")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.SavePost(context.Background(), domain.Post{ID: "p1", AuthorID: "a", CreatedAt: base}))
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()
	p, err := s.GetPost(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "a", p.AuthorID)
}

func TestFeedServiceOverSQLite(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	svc := domain.NewFeedService(s, s, discard(), domain.WithClock(func() time.Time { return base }))

	page, err := svc.GetFeed(context.Background(), domain.FeedRequest{Feed: domain.FeedFollowing, SubjectID: "viewer", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"p4", "p2"}, ids(page.Data))
	require.Equal(t, "p2", page.NextCursor)

	page, err = svc.GetFeed(context.Background(), domain.FeedRequest{Feed: domain.FeedFollowing, SubjectID: "viewer", Cursor: page.NextCursor, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, ids(page.Data))
	require.False(t, page.HasMore)

	page, err = svc.GetFeed(context.Background(), domain.FeedRequest{Feed: domain.FeedForYou, Hashtag: "#go"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"p4", "p1"}, ids(page.Data))
}
