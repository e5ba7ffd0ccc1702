//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/weather-data-store/internal/adapter/kafka"
	"github.com/couchcryptid/weather-data-store/internal/config"
	"github.com/couchcryptid/weather-data-store/internal/domain"
	"github.com/couchcryptid/weather-data-store/internal/ingest"
	"github.com/couchcryptid/weather-data-store/internal/observability"
	"github.com/couchcryptid/weather-data-store/internal/store"
)

const testTopic = "weather-documents-test"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "resolve kafka brokers")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic via the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "resolve controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "dial controller")
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func envelope(t *testing.T, collection string, doc any) []byte {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	data, err := json.Marshal(ingest.Envelope{Collection: collection, Document: raw})
	require.NoError(t, err)
	return data
}

// TestKafkaIngestEndToEnd wires the full ingest path against real Kafka:
// envelopes published to the topic land in the store, and poison pills are
// skipped without wedging the partition.
func TestKafkaIngestEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaTopic:         testTopic,
		KafkaGroupID:       fmt.Sprintf("test-ingest-%d", time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}

	station := domain.WeatherStation{
		StationID:   "WS-LON002",
		Name:        "Hyde Park",
		Location:    domain.Point{Lon: -0.1630249, Lat: 51.493847},
		Owner:       domain.OwnerRef{OwnerType: domain.UserInstitution, UserID: "usr-met", Name: "Met Office"},
		Status:      domain.StatusActive,
		InstalledAt: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	temp, humidity := 6.5, 76.0
	report := domain.WeatherReport{
		Date:     day,
		Location: station.Location,
		Station:  domain.StationRef{StationID: station.StationID, Name: station.Name},
		Owner:    station.Owner,
		Readings: []domain.Reading{
			{Timestamp: day.Add(12 * time.Hour), SampleDuration: 3600, Temp: &temp, Humidity: &humidity},
		},
	}

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte(station.StationID), Value: envelope(t, store.ColStations, station)},
		kafkago.Message{Key: []byte("poison"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte(station.StationID), Value: envelope(t, store.ColReports, report)},
		// Redelivery of the station document; the uniqueness guard makes it a no-op.
		kafkago.Message{Key: []byte(station.StationID), Value: envelope(t, store.ColStations, station)},
	))

	s, err := store.OpenInMemory(discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureIndexes(ctx))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	loop := ingest.New(reader, ingest.NewStoreSink(s), discardLogger(), observability.NewMetricsForTesting(), 50)

	loopCtx, loopCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(loopCtx) }()

	// Wait for the report to land. The consumer group may need time to
	// rebalance before messages flow.
	for {
		_, err := s.GetReportForDay(ctx, station.StationID, day)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("unexpected store error: %v", err)
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for ingested documents")
		}
		time.Sleep(250 * time.Millisecond)
	}

	loopCancel()
	require.NoError(t, <-errCh)

	got, err := s.GetStation(ctx, station.StationID)
	require.NoError(t, err)
	assert.Equal(t, "Hyde Park", got.Name)

	stored, err := s.GetReportForDay(ctx, station.StationID, day)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.Version)
	require.NotNil(t, stored.DaySummary)
	assert.InDelta(t, 6.5, *stored.DaySummary.TempMean, 1e-9)

	assert.NoError(t, loop.CheckReadiness(ctx))

	// The poison pill and the redelivery were both skipped: exactly one
	// station and one report exist.
	stats, err := s.AggregateReadings(ctx, store.ReadingQuery{StationID: station.StationID})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}

// TestKafkaReaderBatching verifies the adapter alone: published messages come
// back with topic metadata and working commit callbacks, and an idle topic
// yields an empty batch after the flush interval.
func TestKafkaReaderBatching(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaTopic:         testTopic,
		KafkaGroupID:       fmt.Sprintf("test-reader-%d", time.Now().UnixNano()),
		BatchFlushInterval: 3 * time.Second,
	}

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	payload := []byte(`{"collection":"weather_stations","document":{"id":"WS-1"}}`)
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte("ws-1"),
		Value: payload,
	}))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	// Retry until the consumer group has partitions assigned.
	var batch []ingest.Message
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 10)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message")
		}
	}

	require.Len(t, batch, 1)
	msg := batch[0]
	assert.Equal(t, testTopic, msg.Topic)
	assert.Equal(t, []byte("ws-1"), msg.Key)
	assert.Equal(t, payload, msg.Value)
	require.NotNil(t, msg.Commit)
	require.NoError(t, msg.Commit(ctx))

	// With nothing left on the topic the flush interval returns an empty
	// partial batch rather than blocking.
	batch, err := reader.ExtractBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)
}
