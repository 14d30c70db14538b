package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/storm-data-layers/internal/adapter/feed"
	httpadapter "github.com/couchcryptid/storm-data-layers/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-data-layers/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-layers/internal/capabilities"
	"github.com/couchcryptid/storm-data-layers/internal/config"
	"github.com/couchcryptid/storm-data-layers/internal/domain"
	"github.com/couchcryptid/storm-data-layers/internal/observability"
	"github.com/couchcryptid/storm-data-layers/internal/overlay"
	"github.com/couchcryptid/storm-data-layers/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	legends := domain.DefaultLegends
	if cfg.LegendsFile != "" {
		legends, err = domain.LoadLegends(cfg.LegendsFile)
		if err != nil {
			logger.Error("failed to load legends", "path", cfg.LegendsFile, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("legends loaded", "parameters", legends.Parameters())

	// Overlay files come from a remote base URL when configured, otherwise
	// from the local overlay directory.
	var fetcher overlay.Fetcher
	if cfg.OverlayBaseURL != "" {
		fetcher = overlay.NewHTTPFetcher(cfg.OverlayBaseURL, cfg.OverlayTimeout, logger)
		logger.Info("overlay source", "base_url", cfg.OverlayBaseURL)
	} else {
		fetcher = overlay.NewDirFetcher(cfg.OverlayDir)
		logger.Info("overlay source", "dir", cfg.OverlayDir)
	}
	fetcher = overlay.NewCachedFetcher(fetcher, cfg.OverlayCacheSize, metrics)

	// Lifecycle events go to Kafka (feature-flagged via KAFKA_ENABLED) or the log.
	var sink pipeline.EventSink
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		sink = writer
		logger.Info("kafka event sink enabled", "topic", cfg.KafkaSinkTopic)
	} else {
		sink = kafkaadapter.NewLogSink(logger)
		logger.Info("kafka event sink disabled")
	}

	state := pipeline.NewState(legends, fetcher, logger, metrics)
	binder := pipeline.NewBinder(legends, cfg.DisplayableParameters)
	p := pipeline.New(state, binder, sink, logger, metrics, pipeline.Options{
		RemoveFailedLayers: cfg.RemoveFailedLayers,
	})

	client, err := feed.NewClient(cfg, p.Submit, logger, metrics)
	if err != nil {
		logger.Error("failed to create feed client", "error", err)
		os.Exit(1)
	}

	services := httpadapter.Services{Layers: p, Feed: client}
	caps := capabilities.NewClient(cfg.WMSProxyURL, cfg.WMSCapabilitiesURL, cfg.OverlayTimeout, logger)
	if caps.Configured() {
		services.Capabilities = caps
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, services, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	g.Go(func() error { return client.Run(gctx) })
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
