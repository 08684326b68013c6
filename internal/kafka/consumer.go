package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/blackmichael/microblog-feeds/internal/domain"
)

// Indexer receives post-created events.
type Indexer interface {
	IndexPost(ctx context.Context, ev domain.PostEvent) (int, error)
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads post-created events from a Kafka topic and feeds them to
// the hashtag index.
type Consumer struct {
	reader  MessageReader
	indexer Indexer
	logger  *slog.Logger
}

// NewConsumer creates a consumer-group reader on topic.
func NewConsumer(brokers []string, groupID, topic string, indexer Indexer, logger *slog.Logger) *Consumer {
	return NewConsumerWithReader(kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: time.Second,
	}), indexer, logger)
}

// NewConsumerWithReader creates a consumer over an existing reader.
func NewConsumerWithReader(reader MessageReader, indexer Indexer, logger *slog.Logger) *Consumer {
	return &Consumer{reader: reader, indexer: indexer, logger: logger}
}

// Run consumes until ctx is cancelled. Messages that cannot be decoded are
// committed and skipped; messages whose indexing fails are left
// uncommitted so the group redelivers them.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		_ = c.reader.Close()
	}()

	c.logger.Info("kafka consumer started")
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("kafka consumer shutting down")
				return nil
			}
			c.logger.Error("kafka fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var ev domain.PostEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.ID == "" {
			c.logger.Warn("skipping undecodable post event",
				"partition", m.Partition,
				"offset", m.Offset,
				"key", string(m.Key),
				"error", err,
			)
			c.commit(ctx, m)
			continue
		}

		n, err := c.indexer.IndexPost(ctx, ev)
		if err != nil {
			c.logger.Error("failed to index post", "post_id", ev.ID, "offset", m.Offset, "error", err)
			continue
		}
		c.logger.Debug("indexed post", "post_id", ev.ID, "tags", n)
		c.commit(ctx, m)
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		c.logger.Error("kafka commit failed", "offset", m.Offset, "error", err)
	}
}
