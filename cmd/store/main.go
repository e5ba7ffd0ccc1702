package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/weather-data-store/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/weather-data-store/internal/adapter/kafka"
	"github.com/couchcryptid/weather-data-store/internal/config"
	"github.com/couchcryptid/weather-data-store/internal/ingest"
	"github.com/couchcryptid/weather-data-store/internal/observability"
	"github.com/couchcryptid/weather-data-store/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	st, err := store.Open(store.Options{
		Dir:      cfg.DataDir,
		InMemory: cfg.InMemory,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.EnsureIndexes(ctx); err != nil {
		logger.Error("failed to ensure indexes", "error", err)
		st.Close()
		os.Exit(1)
	}

	var loop *ingest.Loop
	var reader *kafkaadapter.Reader
	if cfg.IngestEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		loop = ingest.New(reader, ingest.NewStoreSink(st), logger, metrics, cfg.BatchSize)
		logger.Info("kafka ingest enabled", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
	} else {
		logger.Info("kafka ingest disabled")
	}

	ready := httpadapter.ReadinessFunc(func(rctx context.Context) error {
		if !st.IndexesReady() {
			return errors.New("indexes have not been built yet")
		}
		if loop != nil {
			return loop.CheckReadiness(rctx)
		}
		return nil
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, st, ready, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if loop != nil {
		go func() {
			if err := loop.Run(ctx); err != nil {
				logger.Error("ingest error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if err := st.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
