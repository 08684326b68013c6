package firehose

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/microblog-feeds/internal/domain"
)

const (
	cursorServiceName  = "post-stream"
	cursorSaveInterval = 5 * time.Second
	reconnectBackoff   = 5 * time.Second
	statsInterval      = 30 * time.Second
)

// Indexer receives post events and tracks the stream position.
// domain.HashtagService implements it.
type Indexer interface {
	IndexPost(ctx context.Context, ev domain.PostEvent) (int, error)
	GetCursor(ctx context.Context, service string) (int64, error)
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// Subscriber connects to the post event stream and feeds new posts to the
// hashtag index.
type Subscriber struct {
	url     string
	indexer Indexer
	logger  *slog.Logger
	backoff time.Duration
}

// NewSubscriber creates a new event stream subscriber.
func NewSubscriber(streamURL string, indexer Indexer, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		url:     streamURL,
		indexer: indexer,
		logger:  logger,
		backoff: reconnectBackoff,
	}
}

// Start connects to the stream and processes events until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("event stream connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.backoff):
				}
			}
		}
	}
}

func (s *Subscriber) buildURL(cursor int64) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	q := u.Query()
	q.Set("kind", kindPost)
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	cursor, err := s.indexer.GetCursor(ctx, cursorServiceName)
	if err != nil {
		s.logger.Warn("failed to load cursor, starting from live", "error", err)
	}

	wsURL, err := s.buildURL(cursor)
	if err != nil {
		return err
	}
	s.logger.Info("connecting to event stream", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.logger.Info("connected to event stream")

	lastCursorSave := time.Now()
	lastStatsLog := time.Now()
	var latestCursor, eventsReceived, postsIndexed, tagsIndexed int64

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				s.saveCursor(context.WithoutCancel(ctx), latestCursor)
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse event", "error", err)
			continue
		}

		eventsReceived++
		if event.Seq > latestCursor {
			latestCursor = event.Seq
		}

		if event.isPostCreate() {
			n, err := s.indexer.IndexPost(ctx, *event.Post)
			if err != nil {
				s.logger.Error("failed to index post", "post_id", event.Post.ID, "error", err)
			} else {
				postsIndexed++
				tagsIndexed += int64(n)
			}
		}

		if time.Since(lastStatsLog) >= statsInterval {
			s.logger.Info("event stream stats",
				"events_received", eventsReceived,
				"posts_indexed", postsIndexed,
				"tags_indexed", tagsIndexed,
			)
			lastStatsLog = time.Now()
		}

		if time.Since(lastCursorSave) >= cursorSaveInterval {
			if s.saveCursor(ctx, latestCursor) {
				lastCursorSave = time.Now()
			}
		}
	}
}

func (s *Subscriber) saveCursor(ctx context.Context, cursor int64) bool {
	if cursor == 0 {
		return false
	}
	if err := s.indexer.UpdateCursor(ctx, cursorServiceName, cursor); err != nil {
		s.logger.Error("failed to save cursor", "error", err)
		return false
	}
	return true
}
