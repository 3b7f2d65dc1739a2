// Package events publishes crawled product records to a Redis stream so that
// downstream consumers (price alerting, search indexing) see them as they are
// discovered, without polling the database.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/matval/catalog-crawler/internal/models"
)

// RedisClient is the subset of the redis client the publisher needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type Publisher struct {
	client RedisClient
	stream string
	logger *slog.Logger
}

func NewPublisher(client RedisClient, stream string, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		stream: stream,
		logger: logger.With("component", "publisher"),
	}
}

// Emit satisfies the scheduler's record sink.
func (p *Publisher) Emit(ctx context.Context, rec *models.ProductRecord) error {
	return p.Publish(ctx, rec)
}

// Publish appends one record to the stream as a JSON payload plus a few
// denormalized fields consumers filter on without decoding the payload.
func (p *Publisher) Publish(ctx context.Context, rec *models.ProductRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"product_id": rec.ID,
			"site":       rec.Site,
			"name":       rec.Name,
			"payload":    string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish record %s: %w", rec.ID, err)
	}

	p.logger.Debug("record published", "product_id", rec.ID, "stream", p.stream)
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

// FanoutSink forwards each record to every sink, collecting the first error
// but still attempting the rest. Persistence and publishing are independent;
// one failing must not starve the other.
type FanoutSink struct {
	sinks []RecordSink
}

// RecordSink mirrors the scheduler's sink contract.
type RecordSink interface {
	Emit(ctx context.Context, rec *models.ProductRecord) error
}

func NewFanoutSink(sinks ...RecordSink) *FanoutSink {
	return &FanoutSink{sinks: sinks}
}

func (f *FanoutSink) Emit(ctx context.Context, rec *models.ProductRecord) error {
	var firstErr error
	for _, sink := range f.sinks {
		if err := sink.Emit(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
