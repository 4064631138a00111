package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultBlock      = 5 * time.Second
	defaultBatchSize  = 10
	readErrorBackoff  = time.Second
	busyGroupErrorTag = "BUSYGROUP"
)

// StreamReader is the part of *redis.Client the consumer uses
type StreamReader interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// BusHandler handles one decoded bus event
type BusHandler interface {
	HandleBusEvent(ctx context.Context, event BusEvent) Ack
}

// ConsumerConfig configures a stream consumer
type ConsumerConfig struct {
	Stream    string
	Group     string
	Name      string
	Block     time.Duration
	BatchSize int64
}

// Consumer reads the bus stream as a member of a consumer group. Every
// message is acknowledged after handling whatever the outcome, so only a
// crash mid-message leads to redelivery.
type Consumer struct {
	client  StreamReader
	cfg     ConsumerConfig
	handler BusHandler
	logger  *slog.Logger
}

// NewConsumer creates a consumer
func NewConsumer(client StreamReader, cfg ConsumerConfig, handler BusHandler, logger *slog.Logger) *Consumer {
	if cfg.Block <= 0 {
		cfg.Block = defaultBlock
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Consumer{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("stream", cfg.Stream, "group", cfg.Group, "consumer", cfg.Name),
	}
}

// EnsureGroup creates the consumer group, and the stream if needed
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), busyGroupErrorTag) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Run consumes until ctx is canceled
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	c.logger.Info("Starting event consumer")
	for {
		if ctx.Err() != nil {
			c.logger.Info("Stopping event consumer")
			return nil
		}

		if _, err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping event consumer")
				return nil
			}
			c.logger.Error("Failed to read from event stream", "error", err)

			select {
			case <-ctx.Done():
			case <-time.After(readErrorBackoff):
			}
		}
	}
}

// PollOnce reads one batch and handles it. It returns the number of messages handled.
func (c *Consumer) PollOnce(ctx context.Context) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if stderrors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			c.handle(ctx, msg)
			handled++
		}
	}
	return handled, nil
}

func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) {
	event, err := DecodeMessage(msg.Values)
	if err != nil {
		c.logger.Warn("Dropping malformed bus event", "message_id", msg.ID, "error", err)
	} else {
		ack := c.handler.HandleBusEvent(ctx, event)
		c.logger.Debug("Handled bus event",
			"message_id", msg.ID,
			"source", event.Source,
			"detail_type", event.DetailType,
			"ack", ack.Status)
	}

	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.logger.Error("Failed to acknowledge bus event", "message_id", msg.ID, "error", err)
	}
}

// DecodeMessage turns stream fields into a BusEvent
func DecodeMessage(values map[string]interface{}) (BusEvent, error) {
	str := func(key string) string {
		if v, ok := values[key].(string); ok {
			return v
		}
		return ""
	}

	event := BusEvent{
		Source:     str(fieldSource),
		DetailType: str(fieldDetailType),
	}
	if detail := str(fieldDetail); detail != "" {
		if err := json.Unmarshal([]byte(detail), &event.Detail); err != nil {
			return BusEvent{}, fmt.Errorf("invalid event detail: %w", err)
		}
	}
	return event, nil
}
