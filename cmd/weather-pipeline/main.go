package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/csnaves/weather-pipeline/internal/adapter/gemini"
	"github.com/csnaves/weather-pipeline/internal/adapter/httpadapter"
	kafkaadapter "github.com/csnaves/weather-pipeline/internal/adapter/kafka"
	"github.com/csnaves/weather-pipeline/internal/adapter/nominatim"
	"github.com/csnaves/weather-pipeline/internal/adapter/openmeteo"
	"github.com/csnaves/weather-pipeline/internal/adapter/store"
	"github.com/csnaves/weather-pipeline/internal/config"
	"github.com/csnaves/weather-pipeline/internal/domain"
	"github.com/csnaves/weather-pipeline/internal/observability"
	"github.com/csnaves/weather-pipeline/internal/pipeline"
	"github.com/csnaves/weather-pipeline/internal/scheduler"
)

// locationList collects repeated -location flags.
type locationList []domain.Location

func (l *locationList) String() string {
	names := make([]string, len(*l))
	for i, loc := range *l {
		names[i] = loc.DisplayName()
	}
	return strings.Join(names, "; ")
}

func (l *locationList) Set(value string) error {
	loc := domain.ParseLocation(value)
	if loc.IsZero() {
		return errors.New("location must not be empty")
	}
	*l = append(*l, loc)
	return nil
}

func main() {
	var (
		modeFlag  = flag.String("mode", string(domain.ModeForecast), "ingestion window: history (past 24h) or forecast (next hour)")
		dryRun    = flag.Bool("dry-run", false, "compute aggregates but write and publish nothing")
		schedule  = flag.String("schedule", "", "cron spec for daemon mode; empty runs once and exits")
		locations locationList
	)
	flag.Var(&locations, "location", "location to ingest as \"City, State\" or a free-form name; repeatable")
	flag.Parse()

	mode, err := domain.ParseMode(*modeFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if len(locations) == 0 {
		locations = cfg.Locations
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	client := nominatim.NewClient(cfg.NominatimBaseURL, cfg.NominatimTimeout, logger, metrics)
	geocoder := nominatim.NewCachedGeocoder(client, cfg.GeocodeCacheSize, metrics)

	fetcher := openmeteo.NewClient(cfg.OpenMeteoBaseURL, cfg.OpenMeteoTimeout, cfg.FetchMaxRetries, cfg.FetchBackoff, logger)

	var summarizer domain.Summarizer
	if cfg.SummaryEnabled {
		s, err := gemini.NewSummarizer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.SummaryTimeout, logger, metrics)
		if err != nil {
			logger.Error("failed to create summarizer", "error", err)
			os.Exit(1)
		}
		summarizer = s
		metrics.SummaryEnabled.Set(1)
		logger.Info("summary enrichment enabled", "model", cfg.GeminiModel)
	} else {
		logger.Info("summary enrichment disabled")
	}

	var publisher pipeline.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaSinkTopic, logger)
		defer writer.Close()
		publisher = writer
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	}

	p := pipeline.New(pipeline.Options{
		Geocoder:   geocoder,
		Fetcher:    fetcher,
		Store:      st,
		Summarizer: summarizer,
		Publisher:  publisher,
		GridStep:   cfg.GridStep,
		DryRun:     *dryRun,
		Logger:     logger,
		Metrics:    metrics,
	})

	if *schedule == "" {
		if err := p.Run(ctx, mode, locations); err != nil {
			logger.Error("ingestion run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	runDaemon(ctx, cfg, *schedule, mode, locations, p, st, logger)
}

// runDaemon serves probes and metrics over HTTP and triggers ingestion on the
// cron schedule until interrupted.
func runDaemon(ctx context.Context, cfg *config.Config, spec string, mode domain.Mode, locations []domain.Location, p *pipeline.Pipeline, st *store.Store, logger *slog.Logger) {
	sched, err := scheduler.New(spec, func(ctx context.Context) error {
		return p.Run(ctx, mode, locations)
	}, logger)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, st, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
