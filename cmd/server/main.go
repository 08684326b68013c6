package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/blackmichael/microblog-feeds/internal/config"
	"github.com/blackmichael/microblog-feeds/internal/domain"
	"github.com/blackmichael/microblog-feeds/internal/firehose"
	"github.com/blackmichael/microblog-feeds/internal/httpserver"
	"github.com/blackmichael/microblog-feeds/internal/kafka"
	"github.com/blackmichael/microblog-feeds/internal/metrics"
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

// store is what the services need from the post database.
type store interface {
	domain.PostRepository
	domain.FollowRepository
	domain.StreamCursorRepository
	Close() error
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	if cfg.StoreDriver == config.DriverSQLite {
		return sqlite.New(cfg.SQLitePath)
	}
	repo, err := postgres.NewRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

func initOTEL(ctx context.Context, cfg config.TracingConfig) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)
	return tp.Shutdown, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	shutdownTracing, err := initOTEL(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer tcancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Error("error shutting down tracing", "error", err)
		}
	}()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	defer db.Close()
	logger.Info("connected to database", "driver", cfg.StoreDriver)

	// The cache and the hashtag index are optional; nil interfaces disable them.
	var (
		cache domain.CacheStore
		index domain.HashtagIndex
	)
	if cfg.Redis.Addr != "" {
		rc, err := rediscache.New(ctx, rediscache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Warn("redis unreachable at startup, serving uncached until it recovers", "error", err)
		}
		defer rc.Close()
		cache, index = rc, rc
	}

	recorder := metrics.NewRecorder()

	feedService := domain.NewFeedService(db, db, logger,
		domain.WithCache(cache),
		domain.WithRecorder(recorder),
		domain.WithCacheTTL(cfg.Feed.CacheTTL),
		domain.WithCacheSize(cfg.Feed.CacheSize),
		domain.WithMaxPerAuthor(cfg.Feed.MaxPerAuthor),
	)
	hashtagService := domain.NewHashtagService(db, cache, index, db, recorder, logger)

	// Start the post event source in the background
	switch cfg.Events.Source {
	case config.EventSourceWebSocket:
		subscriber := firehose.NewSubscriber(cfg.Events.FirehoseURL, hashtagService, logger)
		go func() {
			if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("event subscriber exited with error", "error", err)
			}
		}()
	case config.EventSourceKafka:
		consumer := kafka.NewConsumer(cfg.Events.KafkaBrokers, cfg.Events.KafkaGroupID, cfg.Events.KafkaTopic, hashtagService, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("kafka consumer exited with error", "error", err)
			}
		}()
	}

	// Rebuild the trending hashtag set on a schedule
	if cfg.HashtagRebuildSchedule != "" && index != nil {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(cfg.HashtagRebuildSchedule, func() {
			jctx, jcancel := context.WithTimeout(ctx, 5*time.Minute)
			defer jcancel()
			if _, err := hashtagService.Rebuild(jctx); err != nil {
				logger.Error("scheduled hashtag rebuild failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule hashtag rebuild %q: %w", cfg.HashtagRebuildSchedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	// Start the HTTP server
	auth := httpserver.NewAuthenticator(cfg.JWTSecret)
	server := httpserver.NewServer(cfg.Port, feedService, hashtagService, auth, recorder.Handler(), logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port, "event_source", cfg.Events.Source, "cache", cache != nil)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := server.Shutdown(sctx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
