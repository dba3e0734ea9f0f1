// Package pipeline orchestrates one ingestion run: resolve each location to
// grid points, fetch and append raw weather, then deduplicate, aggregate,
// enrich, and merge the incremental slice into the analytics table.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"

	"github.com/csnaves/weather-pipeline/internal/domain"
	"github.com/csnaves/weather-pipeline/internal/observability"
)

// Fetcher retrieves raw hourly weather for a set of grid points.
type Fetcher interface {
	Fetch(ctx context.Context, location string, points []domain.GridPoint, mode domain.Mode) ([]domain.RawObservation, error)
}

// Store is the warehouse the pipeline reads from and writes to.
type Store interface {
	AppendRaw(ctx context.Context, obs []domain.RawObservation) error
	RawObservations(ctx context.Context, location string) ([]domain.RawObservation, error)
	Watermark(ctx context.Context, location string) (time.Time, error)
	MergeAggregates(ctx context.Context, location string, aggs []domain.HourlyAggregate, watermark time.Time) error
}

// Publisher delivers merged aggregates to downstream consumers.
type Publisher interface {
	PublishAggregates(ctx context.Context, aggs []domain.HourlyAggregate) error
}

// Options bundles the pipeline's collaborators and tuning knobs. Summarizer
// and Publisher are optional; nil disables that stage.
type Options struct {
	Geocoder   domain.Geocoder
	Fetcher    Fetcher
	Store      Store
	Summarizer domain.Summarizer
	Publisher  Publisher
	GridStep   float64
	DryRun     bool
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}

// Pipeline runs the ingestion flow for a list of locations.
type Pipeline struct {
	geocoder   domain.Geocoder
	fetcher    Fetcher
	store      Store
	summarizer domain.Summarizer
	publisher  Publisher
	gridStep   float64
	dryRun     bool
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock
	ready      atomic.Bool
}

// New creates a Pipeline from its options.
func New(opts Options) *Pipeline {
	return &Pipeline{
		geocoder:   opts.Geocoder,
		fetcher:    opts.Fetcher,
		store:      opts.Store,
		summarizer: opts.Summarizer,
		publisher:  opts.Publisher,
		gridStep:   opts.GridStep,
		dryRun:     opts.DryRun,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		clock:      clockwork.NewRealClock(),
	}
}

// SetClock swaps the time source used for run duration measurement.
func (p *Pipeline) SetClock(c clockwork.Clock) {
	p.clock = c
}

// CheckReadiness returns nil once at least one run has completed, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no ingestion run has completed yet")
	}
	return nil
}

// Run processes every location once. A failing location is logged and
// reported but never blocks the others; the combined error carries one entry
// per failed location.
func (p *Pipeline) Run(ctx context.Context, mode domain.Mode, locations []domain.Location) error {
	p.logger.Info("ingestion run started",
		"mode", mode,
		"locations", len(locations),
		"dry_run", p.dryRun,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	var errs *multierror.Error
	for _, loc := range locations {
		if ctx.Err() != nil {
			errs = multierror.Append(errs, ctx.Err())
			break
		}

		start := p.clock.Now()
		if err := p.runLocation(ctx, mode, loc); err != nil {
			p.metrics.LocationFailures.Inc()
			p.logger.Error("location failed", "location", loc.DisplayName(), "error", err)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", loc.DisplayName(), err))
			continue
		}
		p.metrics.LocationsProcessed.Inc()
		p.metrics.RunDuration.Observe(p.clock.Since(start).Seconds())
		p.ready.Store(true)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return err
	}
	p.logger.Info("ingestion run finished", "mode", mode)
	return nil
}

func (p *Pipeline) runLocation(ctx context.Context, mode domain.Mode, loc domain.Location) error {
	name := loc.DisplayName()

	points, err := domain.ResolveGrid(ctx, p.geocoder, loc, p.gridStep)
	if err != nil {
		return err
	}
	p.metrics.GridPointCount.Observe(float64(len(points)))

	fetched, err := p.fetcher.Fetch(ctx, name, points, mode)
	if err != nil {
		return err
	}

	var raws []domain.RawObservation
	if p.dryRun {
		// Stamp in memory and fold into the already-persisted history so the
		// run computes exactly what a real merge would, without writing.
		existing, err := p.store.RawObservations(ctx, name)
		if err != nil {
			return err
		}
		raws = append(existing, domain.StampLoadedAt(fetched)...)
	} else {
		if err := p.store.AppendRaw(ctx, fetched); err != nil {
			return err
		}
		p.metrics.RawRowsLoaded.Add(float64(len(fetched)))
		if raws, err = p.store.RawObservations(ctx, name); err != nil {
			return err
		}
	}

	canonical := domain.Deduplicate(raws)

	watermark, err := p.store.Watermark(ctx, name)
	if err != nil {
		return err
	}
	fresh := domain.SelectSince(canonical, watermark)

	aggs, err := domain.AggregateHourly(fresh)
	if err != nil {
		return err
	}
	if len(aggs) == 0 {
		p.logger.Info("nothing new to merge", "location", name, "watermark", watermark)
		return nil
	}

	aggs = domain.EnrichWithSummary(ctx, aggs, p.summarizer, p.logger)
	newWatermark := domain.MaxSourceUpdated(aggs)

	if p.dryRun {
		for _, agg := range aggs {
			p.logger.Info("would merge",
				"location", agg.Location,
				"forecast_time", agg.ForecastTime,
				"avg_temperature", agg.AvgTemperature,
				"avg_precip_probability", agg.AvgPrecipProb,
				"total_precipitation", agg.TotalPrecip,
				"is_day", agg.IsDay,
				"grid_points", agg.GridPointCount,
			)
		}
		p.logger.Info("dry run complete",
			"location", name,
			"raw_rows", len(fetched),
			"aggregates", len(aggs),
			"would_advance_watermark_to", newWatermark,
		)
		return nil
	}

	if err := p.store.MergeAggregates(ctx, name, aggs, newWatermark); err != nil {
		return err
	}
	p.metrics.AggregatesMerged.Add(float64(len(aggs)))

	if p.publisher != nil {
		if err := p.publisher.PublishAggregates(ctx, aggs); err != nil {
			return fmt.Errorf("publishing aggregates: %w", err)
		}
	}

	p.logger.Info("location merged",
		"location", name,
		"grid_points", len(points),
		"raw_rows", len(fetched),
		"aggregates", len(aggs),
		"watermark", newWatermark,
	)
	return nil
}
