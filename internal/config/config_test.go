package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, 3000, cfg.Port)
	require.Equal(t, DriverPostgres, cfg.StoreDriver)
	require.Equal(t, 120*time.Second, cfg.Feed.CacheTTL)
	require.Equal(t, 100, cfg.Feed.CacheSize)
	require.Equal(t, 2, cfg.Feed.MaxPerAuthor)
	require.Equal(t, EventSourceNone, cfg.Events.Source)
	require.Empty(t, cfg.Redis.Addr)
	require.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "8080")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("FEED_CACHE_TTL", "45s")
	t.Setenv("EVENT_SOURCE", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	require.Equal(t, DriverSQLite, cfg.StoreDriver)
	require.Equal(t, "cache:6379", cfg.Redis.Addr)
	require.Equal(t, 45*time.Second, cfg.Feed.CacheTTL)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = 4000
store_driver = "sqlite"
sqlite_path = ":memory:"
hashtag_rebuild_schedule = "*/10 * * * *"

[redis]
addr = "redis:6379"

[feed]
cache_ttl = "1m"
max_per_author = 3
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "5000")

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, 5000, cfg.Port)
	require.Equal(t, DriverSQLite, cfg.StoreDriver)
	require.Equal(t, ":memory:", cfg.SQLitePath)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, time.Minute, cfg.Feed.CacheTTL)
	require.Equal(t, 3, cfg.Feed.MaxPerAuthor)
	require.Equal(t, 100, cfg.Feed.CacheSize)
	require.Equal(t, "*/10 * * * *", cfg.HashtagRebuildSchedule)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "port", key: "PORT", val: "http"},
		{name: "driver", key: "STORE_DRIVER", val: "mongo"},
		{name: "event source", key: "EVENT_SOURCE", val: "carrier-pigeon"},
		{name: "ttl", key: "FEED_CACHE_TTL", val: "soon"},
		{name: "cache size", key: "FEED_CACHE_SIZE", val: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv(tt.key, tt.val)

			_, err := Load()

			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.toml"))

	_, err := Load()

	require.Error(t, err)
}
