// Package kafka adapts the segmentio/kafka-go consumer to the ingest loop.
package kafka

import (
	"context"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/weather-data-store/internal/config"
	"github.com/couchcryptid/weather-data-store/internal/ingest"
)

// Reader consumes messages from the ingest topic.
// It implements ingest.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	logger        *slog.Logger
	flushInterval time.Duration
}

// NewReader creates a Kafka consumer for the configured topic and group.
// Offsets are committed explicitly after documents are stored.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: 0, // synchronous commits
	})
	return &Reader{reader: r, logger: logger, flushInterval: cfg.BatchFlushInterval}
}

// ExtractBatch fetches up to batchSize messages, returning early once the
// flush interval elapses so a slow topic still produces partial batches.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]ingest.Message, error) {
	deadline, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()

	batch := make([]ingest.Message, 0, batchSize)
	for len(batch) < batchSize {
		msg, err := r.reader.FetchMessage(deadline)
		if err != nil {
			// The flush deadline expiring is the normal end of a
			// partial batch.
			if deadline.Err() != nil && ctx.Err() == nil {
				return batch, nil
			}
			if len(batch) > 0 && ctx.Err() == nil {
				return batch, nil
			}
			return nil, err
		}
		batch = append(batch, mapMessage(r.reader, msg))
	}
	return batch, nil
}

// Close shuts down the consumer and leaves the group.
func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessage converts a kafka-go message into an ingest message with a bound
// commit callback.
func mapMessage(reader *kafkago.Reader, msg kafkago.Message) ingest.Message {
	return ingest.Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Commit: func(ctx context.Context) error {
			return reader.CommitMessages(ctx, msg)
		},
	}
}
