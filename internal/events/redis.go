package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Stream field names
const (
	fieldSource     = "source"
	fieldDetailType = "detail-type"
	fieldDetail     = "detail"
)

// StreamWriter is the part of *redis.Client the publisher uses
type StreamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// NewRedisClient connects to url (redis://host:port/db)
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// RedisPublisher appends entries to the Redis stream named after the event bus
type RedisPublisher struct {
	client  StreamWriter
	busName string
	source  string
	logger  *slog.Logger
}

// NewPublisher returns a RedisPublisher, or a NoopPublisher when busName is
// empty or there is no client.
func NewPublisher(client StreamWriter, busName, source string, logger *slog.Logger) Publisher {
	if busName == "" || client == nil {
		return NewNoopPublisher(logger)
	}
	return &RedisPublisher{
		client:  client,
		busName: busName,
		source:  source,
		logger:  logger,
	}
}

// PublishStatusUpdate emits requisition.status_updated with {entityId, status}
func (p *RedisPublisher) PublishStatusUpdate(ctx context.Context, entityID, status string) error {
	return p.Publish(ctx, DetailTypeStatusUpdated, StatusDetail{EntityID: entityID, Status: status})
}

// Publish XADDs one entry
func (p *RedisPublisher) Publish(ctx context.Context, detailType string, detail any) error {
	entry, err := NewEntry(p.busName, p.source, detailType, detail)
	if err != nil {
		return err
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: entry.EventBusName,
		Values: map[string]interface{}{
			fieldSource:     entry.Source,
			fieldDetailType: entry.DetailType,
			fieldDetail:     entry.Detail,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", detailType, p.busName, err)
	}

	p.logger.Debug("Published event",
		"stream", p.busName,
		"message_id", id,
		"source", entry.Source,
		"detail_type", detailType)
	return nil
}
