package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/blackmichael/microblog-feeds/internal/domain"
	"github.com/blackmichael/microblog-feeds/internal/postgres"
	"github.com/blackmichael/microblog-feeds/internal/rediscache"
	"github.com/blackmichael/microblog-feeds/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		driver      string
		databaseURL string
		sqlitePath  string
		redisAddr   string
		redisPass   string
		redisDB     int
		show        int
		timeout     time.Duration
		verbose     bool
	)

	flag.StringVar(&driver, "driver", envOrDefault("STORE_DRIVER", "postgres"), "Post store driver (postgres or sqlite)")
	flag.StringVar(&databaseURL, "database-url", envOrDefault("DATABASE_URL", ""), "Postgres connection string")
	flag.StringVar(&sqlitePath, "sqlite-path", envOrDefault("SQLITE_PATH", "data/feeds.db"), "SQLite database file")
	flag.StringVar(&redisAddr, "redis-addr", envOrDefault("REDIS_ADDR", "localhost:6379"), "Redis address holding the trending hashtag set")
	flag.StringVar(&redisPass, "redis-password", envOrDefault("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&redisDB, "redis-db", envIntOrDefault("REDIS_DB", 0), "Redis database number")
	flag.IntVar(&show, "show", 10, "Print the top N hashtags after rebuilding (0 to skip)")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "Give up after this long")
	flag.BoolVar(&verbose, "v", false, "Log progress to stderr")
	flag.Parse()

	logOut := io.Discard
	if verbose {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logOut, nil))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var posts domain.PostRepository
	switch driver {
	case "sqlite":
		s, err := sqlite.New(sqlitePath)
		if err != nil {
			return err
		}
		defer s.Close()
		posts = s
	case "postgres":
		if databaseURL == "" {
			return fmt.Errorf("--database-url is required for postgres (or set DATABASE_URL)")
		}
		repo, err := postgres.NewRepository(ctx, databaseURL)
		if err != nil {
			return err
		}
		defer repo.Close()
		posts = repo
	default:
		return fmt.Errorf("--driver must be postgres or sqlite, got %q", driver)
	}

	cache, err := rediscache.New(ctx, rediscache.Options{Addr: redisAddr, Password: redisPass, DB: redisDB})
	if err != nil {
		return err
	}
	defer cache.Close()

	svc := domain.NewHashtagService(posts, cache, cache, nil, nil, logger)

	fmt.Printf("Rebuilding %s from recent posts...\n", domain.TrendingHashtagsKey)
	n, err := svc.Rebuild(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d hashtags\n", n)

	if show <= 0 {
		return nil
	}
	page, err := svc.TrendingHashtags(ctx, show)
	if err != nil {
		return err
	}
	for i, h := range page.Data {
		fmt.Printf("%3d. %-30s %d\n", i+1, h.Tag, h.Count)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
