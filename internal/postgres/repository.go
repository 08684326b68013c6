package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/blackmichael/microblog-feeds/internal/domain"
)

//go:embed schema.sql
var schema string

// Repository implements domain.PostRepository, domain.FollowRepository and
// domain.StreamCursorRepository using PostgreSQL.
type Repository struct {
	db *sql.DB
}

// NewRepository connects to PostgreSQL at the given URL, verifies the
// connection, and returns a new Repository. The caller should call Close
// when the repository is no longer needed.
func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Migrate creates the tables and indexes the repository reads.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const postColumns = `
	p.id, p.author_id, p.created_at, p.content,
	p.like_count, p.repost_count, p.reply_count, p.quote_count, p.is_deleted,
	COALESCE(a.post_count, 0), COALESCE(a.follower_count, 0)`

// QueryPosts returns non-deleted posts matching f, ordered by created_at
// then id, newest first.
func (r *Repository) QueryPosts(ctx context.Context, f domain.PostFilter, limit int) ([]domain.Post, error) {
	if f.AuthorIDs != nil && len(f.AuthorIDs) == 0 {
		return nil, nil
	}

	var (
		where = []string{"NOT p.is_deleted"}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.CreatedAfter.IsZero() {
		where = append(where, "p.created_at > "+arg(f.CreatedAfter))
	}
	if !f.CreatedAtOrBefore.IsZero() {
		where = append(where, "p.created_at <= "+arg(f.CreatedAtOrBefore))
	}
	if len(f.AuthorIDs) > 0 {
		where = append(where, "p.author_id = ANY("+arg(f.AuthorIDs)+")")
	}
	if f.IDBefore != "" {
		where = append(where, "p.id < "+arg(f.IDBefore))
	}
	if f.HasContent {
		where = append(where, "p.content IS NOT NULL")
	}
	if f.ContentContains != "" {
		where = append(where, "strpos(lower(p.content), lower("+arg(f.ContentContains)+")) > 0")
	}

	query := `SELECT` + postColumns + `
		FROM posts p
		LEFT JOIN accounts a ON a.id = p.author_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ` + arg(limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts (limit=%d): %w", limit, err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// GetPost returns a post by id, deleted or not.
func (r *Repository) GetPost(ctx context.Context, id string) (domain.Post, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+postColumns+`
		FROM posts p
		LEFT JOIN accounts a ON a.id = p.author_id
		WHERE p.id = $1`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Post{}, domain.ErrPostNotFound
	}
	if err != nil {
		return domain.Post{}, fmt.Errorf("get post %s: %w", id, err)
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (domain.Post, error) {
	var (
		p       domain.Post
		content sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.AuthorID, &p.CreatedAt, &content,
		&p.LikeCount, &p.RepostCount, &p.ReplyCount, &p.QuoteCount, &p.IsDeleted,
		&p.Author.PostCount, &p.Author.FollowerCount,
	)
	if err != nil {
		return p, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if content.Valid {
		p.Content = &content.String
	}
	return p, nil
}

// ListFollowingIDs returns the accounts accountID follows.
func (r *Repository) ListFollowingIDs(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT followee_id FROM follows WHERE follower_id = $1 ORDER BY followee_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query follows for %s: %w", accountID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan follow: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate follows: %w", err)
	}
	return ids, nil
}

// GetCursor retrieves the saved event-stream cursor for a service.
func (r *Repository) GetCursor(ctx context.Context, service string) (int64, error) {
	var cursor int64
	err := r.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE service = $1`, service,
	).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return cursor, err
}

// UpdateCursor upserts the event-stream cursor for a service.
func (r *Repository) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cursors (service, cursor_value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (service) DO UPDATE SET cursor_value = $2, updated_at = $3`,
		service, cursor, time.Now().UTC(),
	)
	return err
}
