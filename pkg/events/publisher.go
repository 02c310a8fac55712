package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
)

// Publisher publishes events to Redis.
type Publisher struct {
	client *redis.Client
	logger logging.Logger
}

// PublisherConfig holds Redis connection configuration.
type PublisherConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewPublisher creates a new event publisher.
func NewPublisher(client *redis.Client, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Publisher{
		client: client,
		logger: logger.With(logging.Component("event_publisher")),
	}
}

// NewPublisherFromConfig creates a publisher with a new Redis connection.
func NewPublisherFromConfig(cfg PublisherConfig, logger logging.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewPublisher(client, logger), nil
}

// PublishMinutesProcessed publishes an event for a finished request.
func (p *Publisher) PublishMinutesProcessed(ctx context.Context, r *types.MinutesResult) error {
	return p.publish(ctx, ChannelMinutesProcessed, NewMinutesProcessedEvent(r))
}

// PublishModelUpdate publishes a committed or rolled back model update.
// Unchanged outcomes are ignored.
func (p *Publisher) PublishModelUpdate(ctx context.Context, o update.Outcome) error {
	channel, ok := channelFor(o)
	if !ok {
		return nil
	}
	return p.publish(ctx, channel, NewModelUpdateEvent(o))
}

// PublishDrift publishes a drift report.
func (p *Publisher) PublishDrift(ctx context.Context, r update.DriftReport) error {
	return p.publish(ctx, ChannelModelDriftDetected, NewDriftDetectedEvent(r))
}

// publish serializes and publishes an event to Redis.
func (p *Publisher) publish(ctx context.Context, channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.logger.Error("Failed to publish event",
			logging.Err(err),
			logging.F("channel", channel))
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	p.logger.Debug("Event published",
		logging.F("channel", channel),
		logging.F("payload_size", len(data)))

	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
