// Package queue consumes inbound events from a Redis list, for producers
// that push trigger events instead of calling the HTTP surface.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/driptide/driptide/pkg/ingest"
)

const (
	defaultQueue   = "driptide:events"
	popTimeout     = time.Second
	connectTimeout = 5 * time.Second
	errorBackoff   = time.Second
)

// Consumer pops event documents off a Redis list and delivers them to the
// sink. Messages that are not valid event JSON are wrapped as raw payloads
// rather than dropped.
type Consumer struct {
	logger *slog.Logger
	sink   ingest.Sink
	queue  string

	redisURL string
	client   redis.UniversalClient

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewConsumer creates a consumer for the given Redis URL and list name. An
// empty queue name falls back to the default list.
func NewConsumer(logger *slog.Logger, sink ingest.Sink, redisURL, queue string) *Consumer {
	if queue == "" {
		queue = defaultQueue
	}

	return &Consumer{
		logger:   logger.With("module", "queue_consumer", "queue", queue),
		sink:     sink,
		queue:    queue,
		redisURL: redisURL,
		stopCh:   make(chan struct{}),
	}
}

// Start connects to Redis and begins consuming.
func (c *Consumer) Start(ctx context.Context) error {
	opts, err := redis.ParseURL(c.redisURL)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}

	c.client = redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := c.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr)

	c.wg.Add(1)

	go c.consume(ctx)

	return nil
}

// Stop halts the consumer and closes the connection.
func (c *Consumer) Stop(ctx context.Context) error {
	close(c.stopCh)
	c.wg.Wait()

	if c.client != nil {
		if err := c.client.Close(); err != nil {
			c.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}

func (c *Consumer) consume(ctx context.Context) {
	defer c.wg.Done()

	c.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			if err := c.processMessage(ctx); err != nil {
				c.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(errorBackoff)
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context) error {
	result, err := c.client.BLPop(ctx, popTimeout, c.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	event := decodeMessage(result[1])

	if err := c.sink.Deliver(ctx, event); err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}

	return nil
}

// decodeMessage parses an event document; anything else becomes a raw
// message payload with type "queue.message".
func decodeMessage(message string) ingest.Event {
	var event ingest.Event
	if err := json.Unmarshal([]byte(message), &event); err == nil && event.Type != "" {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		return event
	}

	return ingest.Event{
		Type: "queue.message",
		Payload: map[string]any{
			"message": message,
		},
		Timestamp: time.Now().UTC(),
	}
}
