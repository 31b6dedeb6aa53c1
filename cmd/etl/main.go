package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/case-data-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/case-data-etl/internal/adapter/fetch"
	httpadapter "github.com/couchcryptid/case-data-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/case-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/case-data-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/case-data-etl/internal/adapter/postgres"
	"github.com/couchcryptid/case-data-etl/internal/artifact"
	"github.com/couchcryptid/case-data-etl/internal/config"
	"github.com/couchcryptid/case-data-etl/internal/domain"
	"github.com/couchcryptid/case-data-etl/internal/observability"
	"github.com/couchcryptid/case-data-etl/internal/pipeline"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	altNames := domain.DefaultAltNames()
	if cfg.AltNamesFile != "" {
		altNames, err = domain.LoadAltNamesFile(cfg.AltNamesFile)
		if err != nil {
			logger.Error("failed to load alternate names", "path", cfg.AltNamesFile, "error", err)
			return 1
		}
	}

	var options []pipeline.Option

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		options = append(options, pipeline.WithGeocoder(mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)))
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var prior pipeline.PriorLoader = artifact.RegionTableFile(cfg.RegionTablePath())
	if cfg.DatabaseURL != "" {
		store, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			return 1
		}
		defer store.Close()
		options = append(options, pipeline.WithMirror(store))
		if cfg.PriorSource == config.PriorPostgres {
			prior = store
		}
	}

	var writer *kafkaadapter.Writer
	if cfg.KafkaNotify {
		writer = kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		options = append(options, pipeline.WithNotifier(writer))
	}

	opts := pipeline.Options{
		RegionTableFile: cfg.RegionTableFile,
		CaseDataFile:    cfg.CaseDataFile,
		ManifestFile:    cfg.ManifestFile,
		Compress:        cfg.CompressCaseData,
		Verify:          cfg.VerifyExport,
		BatchSize:       cfg.BatchSize,
		AltNames:        altNames,
	}

	var src pipeline.Source
	switch cfg.SourceKind {
	case config.SourceURL:
		src = fetch.NewSource(cfg.SourceURL, cfg.FetchTimeout, cfg.FetchMaxElapsed, logger)
	case config.SourceKafka:
		reader := kafkaadapter.NewReader(cfg, logger)
		defer func() {
			if err := reader.Close(); err != nil {
				logger.Error("kafka reader close error", "error", err)
			}
		}()
		src = reader
		opts.Incremental = true
	default:
		src = csvsource.File{Path: cfg.SourceFile}
	}

	p := pipeline.New(src, prior, artifact.NewPublisher(cfg.DataDir, logger), opts, logger, metrics, options...)

	if cfg.Mode == config.ModeOnce {
		if _, err := p.RunOnce(ctx); err != nil {
			logger.Error("run failed", "error", err)
			return 1
		}
		return 0
	}
	return serve(ctx, cfg, p, logger)
}

func serve(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) int {
	files := []string{cfg.RegionTableFile, cfg.CaseDataFile, cfg.ManifestFile}
	if cfg.CompressCaseData {
		files = append(files, cfg.CaseDataFile+artifact.SnappySuffix)
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, cfg.DataDir, files, logger)
	scheduler := pipeline.NewScheduler(p, cfg.RefreshInterval, clockwork.NewRealClock(), logger)

	g, gctx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Start refresh loop.
	g.Go(func() error { return scheduler.Run(gctx) })

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
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}
