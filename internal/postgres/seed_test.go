package postgres

import (
	"context"
	"fmt"

	"github.com/blackmichael/microblog-feeds/internal/domain"
)

// Write helpers used to seed the database in tests. The service itself only
// reads posts, accounts and follows.

// SavePost inserts or updates a post.
func (r *Repository) SavePost(ctx context.Context, p domain.Post) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, created_at, content,
			like_count, repost_count, reply_count, quote_count, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			like_count = EXCLUDED.like_count,
			repost_count = EXCLUDED.repost_count,
			reply_count = EXCLUDED.reply_count,
			quote_count = EXCLUDED.quote_count,
			is_deleted = EXCLUDED.is_deleted`,
		p.ID, p.AuthorID, p.CreatedAt, p.Content,
		p.LikeCount, p.RepostCount, p.ReplyCount, p.QuoteCount, p.IsDeleted,
	)
	if err != nil {
		return fmt.Errorf("save post %s: %w", p.ID, err)
	}
	return nil
}

// DeletePost marks a post deleted.
func (r *Repository) DeletePost(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE posts SET is_deleted = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	return nil
}

// SaveAccount inserts or updates an account's counters.
func (r *Repository) SaveAccount(ctx context.Context, id string, stats domain.AuthorStats) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, post_count, follower_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			post_count = EXCLUDED.post_count,
			follower_count = EXCLUDED.follower_count`,
		id, stats.PostCount, stats.FollowerCount,
	)
	if err != nil {
		return fmt.Errorf("save account %s: %w", id, err)
	}
	return nil
}

// Follow records that followerID follows followeeID.
func (r *Repository) Follow(ctx context.Context, followerID, followeeID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, followerID, followeeID)
	if err != nil {
		return fmt.Errorf("follow %s -> %s: %w", followerID, followeeID, err)
	}
	return nil
}
