// Package ingest runs the Kafka-to-store loop: canonical weather documents
// arrive as JSON envelopes on a topic and are decoded, validated, and
// inserted in batches.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/weather-data-store/internal/observability"
)

// Message is one raw record from the ingest source. Commit acknowledges the
// record after it has been durably handled.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Commit    func(ctx context.Context) error
}

// BatchExtractor reads up to batchSize messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]Message, error)
}

// Sink stores one decoded document.
type Sink interface {
	Store(ctx context.Context, collection string, doc json.RawMessage) error
}

// Envelope is the wire format on the ingest topic: the target collection and
// the document body.
type Envelope struct {
	Collection string          `json:"collection"`
	Document   json.RawMessage `json:"document"`
}

// Loop orchestrates the extract-decode-store cycle.
type Loop struct {
	extractor BatchExtractor
	sink      Sink
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a Loop with the given stages and observability.
func New(e BatchExtractor, sink Sink, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Loop {
	return &Loop{
		extractor: e,
		sink:      sink,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil once the loop has processed at least one
// message, or an error describing why the service is not yet ready.
func (l *Loop) CheckReadiness(_ context.Context) error {
	if !l.ready.Load() {
		return errors.New("ingest has not processed any messages yet")
	}
	return nil
}

// Run executes the batch ingest loop until the context is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("ingest started", "batch_size", l.batchSize)
	l.metrics.IngestRunning.Set(1)
	defer l.metrics.IngestRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	// Keeps retry storms short while avoiding tight loops during Kafka outages.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("ingest stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !l.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-decode-store cycle. Returns false if the loop should stop.
func (l *Loop) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	batch, err := l.extractor.ExtractBatch(ctx, l.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		l.logger.Error("extract batch failed", "error", err)
		return l.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	l.metrics.MessagesConsumed.Add(float64(len(batch)))
	l.metrics.BatchSize.Observe(float64(len(batch)))
	*backoff = 200 * time.Millisecond

	stored := 0
	for _, msg := range batch {
		if err := l.handleMessage(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return false
			}
			l.logger.Error("store document failed", "error", err,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
			return l.backoffOrStop(ctx, backoff, maxBackoff)
		}
		stored++
	}

	if stored > 0 {
		l.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		l.ready.Store(true)
	}
	return true
}

// handleMessage decodes one envelope and stores it. Malformed envelopes are
// counted, logged, and committed so they do not wedge the partition.
func (l *Loop) handleMessage(ctx context.Context, msg Message) error {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		l.metrics.DecodeErrors.Inc()
		l.logger.Warn("malformed envelope dropped", "error", err,
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		l.commit(ctx, msg)
		return nil
	}
	if env.Collection == "" || len(env.Document) == 0 {
		l.metrics.DecodeErrors.Inc()
		l.logger.Warn("incomplete envelope dropped",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		l.commit(ctx, msg)
		return nil
	}

	if err := l.sink.Store(ctx, env.Collection, env.Document); err != nil {
		var dropErr *DropError
		if errors.As(err, &dropErr) {
			l.metrics.DecodeErrors.Inc()
			l.logger.Warn("document dropped", "error", dropErr,
				"collection", env.Collection, "offset", msg.Offset)
			l.commit(ctx, msg)
			return nil
		}
		return fmt.Errorf("store %s document: %w", env.Collection, err)
	}

	l.metrics.DocumentsStored.Inc()
	l.commit(ctx, msg)
	return nil
}

// DropError marks a document as unstorable: redelivery would fail the same
// way, so the message is committed and skipped.
type DropError struct {
	Reason string
	Err    error
}

func (e *DropError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *DropError) Unwrap() error { return e.Err }

// commit acknowledges the message offset if a commit function is available.
func (l *Loop) commit(ctx context.Context, msg Message) {
	if msg.Commit == nil {
		return
	}
	if err := msg.Commit(ctx); err != nil {
		l.logger.Warn("commit offset failed", "error", err,
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	}
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the loop should stop.
func (l *Loop) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
