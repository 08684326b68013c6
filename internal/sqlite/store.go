package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/blackmichael/microblog-feeds/internal/domain"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store implements domain.PostRepository, domain.FollowRepository and
// domain.StreamCursorRepository using SQLite.
type Store struct {
	db *sql.DB
}

// New opens the SQLite database at path and creates the schema if needed.
func New(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		post_count INTEGER NOT NULL DEFAULT 0,
		follower_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		content TEXT,
		like_count INTEGER NOT NULL DEFAULT 0,
		repost_count INTEGER NOT NULL DEFAULT 0,
		reply_count INTEGER NOT NULL DEFAULT 0,
		quote_count INTEGER NOT NULL DEFAULT 0,
		is_deleted BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS follows (
		follower_id TEXT NOT NULL,
		followee_id TEXT NOT NULL,
		PRIMARY KEY (follower_id, followee_id)
	);

	CREATE TABLE IF NOT EXISTS cursors (
		service TEXT PRIMARY KEY,
		cursor_value INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

const postColumns = `
	p.id, p.author_id, p.created_at, p.content,
	p.like_count, p.repost_count, p.reply_count, p.quote_count, p.is_deleted,
	COALESCE(a.post_count, 0), COALESCE(a.follower_count, 0)`

// QueryPosts returns non-deleted posts matching f, newest first.
func (s *Store) QueryPosts(ctx context.Context, f domain.PostFilter, limit int) ([]domain.Post, error) {
	if f.AuthorIDs != nil && len(f.AuthorIDs) == 0 {
		return nil, nil
	}

	var (
		where = []string{"p.is_deleted = 0"}
		args  []any
	)
	if !f.CreatedAfter.IsZero() {
		where = append(where, "p.created_at > ?")
		args = append(args, f.CreatedAfter.UnixMilli())
	}
	if !f.CreatedAtOrBefore.IsZero() {
		where = append(where, "p.created_at <= ?")
		args = append(args, f.CreatedAtOrBefore.UnixMilli())
	}
	if len(f.AuthorIDs) > 0 {
		where = append(where, "p.author_id IN (?"+strings.Repeat(", ?", len(f.AuthorIDs)-1)+")")
		for _, id := range f.AuthorIDs {
			args = append(args, id)
		}
	}
	if f.IDBefore != "" {
		where = append(where, "p.id < ?")
		args = append(args, f.IDBefore)
	}
	if f.HasContent {
		where = append(where, "p.content IS NOT NULL")
	}
	if f.ContentContains != "" {
		where = append(where, "instr(lower(p.content), lower(?)) > 0")
		args = append(args, f.ContentContains)
	}
	args = append(args, limit)

	query := `SELECT` + postColumns + `
		FROM posts p
		LEFT JOIN accounts a ON a.id = p.author_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *Store) GetPost(ctx context.Context, id string) (domain.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT`+postColumns+`
		FROM posts p
		LEFT JOIN accounts a ON a.id = p.author_id
		WHERE p.id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Post{}, domain.ErrPostNotFound
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (domain.Post, error) {
	var (
		p         domain.Post
		createdAt int64
		content   sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.AuthorID, &createdAt, &content,
		&p.LikeCount, &p.RepostCount, &p.ReplyCount, &p.QuoteCount, &p.IsDeleted,
		&p.Author.PostCount, &p.Author.FollowerCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return p, err
	}
	if err != nil {
		return p, fmt.Errorf("scan post: %w", err)
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	if content.Valid {
		p.Content = &content.String
	}
	return p, nil
}

// ListFollowingIDs returns the accounts accountID follows.
func (s *Store) ListFollowingIDs(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT followee_id FROM follows WHERE follower_id = ? ORDER BY followee_id`, accountID)
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
	return ids, rows.Err()
}

// The write methods below seed the embedded database for local development
// and tests. The service only reads posts, accounts and follows; production
// data arrives through whatever system owns the tables.

// SavePost inserts or updates a post.
func (s *Store) SavePost(ctx context.Context, p domain.Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, created_at, content,
			like_count, repost_count, reply_count, quote_count, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			like_count = excluded.like_count,
			repost_count = excluded.repost_count,
			reply_count = excluded.reply_count,
			quote_count = excluded.quote_count,
			is_deleted = excluded.is_deleted`,
		p.ID, p.AuthorID, p.CreatedAt.UnixMilli(), p.Content,
		p.LikeCount, p.RepostCount, p.ReplyCount, p.QuoteCount, p.IsDeleted,
	)
	if err != nil {
		return fmt.Errorf("save post %s: %w", p.ID, err)
	}
	return nil
}

// DeletePost marks a post deleted.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE posts SET is_deleted = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	return nil
}

// SaveAccount inserts or updates an account's counters.
func (s *Store) SaveAccount(ctx context.Context, id string, stats domain.AuthorStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, post_count, follower_count)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			post_count = excluded.post_count,
			follower_count = excluded.follower_count`,
		id, stats.PostCount, stats.FollowerCount,
	)
	if err != nil {
		return fmt.Errorf("save account %s: %w", id, err)
	}
	return nil
}

// Follow records that followerID follows followeeID.
func (s *Store) Follow(ctx context.Context, followerID, followeeID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO follows (follower_id, followee_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING`, followerID, followeeID)
	if err != nil {
		return fmt.Errorf("follow %s -> %s: %w", followerID, followeeID, err)
	}
	return nil
}

// GetCursor retrieves the saved event-stream cursor for a service.
func (s *Store) GetCursor(ctx context.Context, service string) (int64, error) {
	var cursor int64
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE service = ?`, service,
	).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return cursor, err
}

// UpdateCursor upserts the event-stream cursor for a service.
func (s *Store) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (service, cursor_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET cursor_value = excluded.cursor_value, updated_at = excluded.updated_at`,
		service, cursor, time.Now().UTC().UnixMilli(),
	)
	return err
}
