// Package pipeline runs the per-vehicle collection pipeline:
// adapters, normalization, deduplication and aggregation.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/aristath/carmarket/internal/domain"
	"github.com/aristath/carmarket/internal/modules/aggregation"
	"github.com/aristath/carmarket/internal/modules/dedup"
	"github.com/aristath/carmarket/internal/modules/normalization"
	"github.com/aristath/carmarket/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrNoVehicles is returned when a run is started without any vehicle.
var ErrNoVehicles = domain.ErrNoVehicles

// DefaultAdapterTimeout bounds a single adapter call when no timeout is configured.
const DefaultAdapterTimeout = 90 * time.Second

// slowAdapterCall is the duration above which an adapter call is logged as slow.
const slowAdapterCall = 30 * time.Second

// Config holds orchestration settings.
type Config struct {
	// Workers is the number of vehicles processed concurrently. Values below 2
	// keep processing strictly sequential.
	Workers int
	// AdapterTimeout bounds each adapter call. Zero uses DefaultAdapterTimeout.
	AdapterTimeout time.Duration
}

// Pipeline orchestrates one collection run over a vehicle list.
type Pipeline struct {
	adapters []domain.SourceAdapter
	rates    domain.RateProvider
	cfg      Config
	now      func() time.Time
	log      zerolog.Logger
}

// New creates a pipeline. rates is the underlying provider; every run wraps
// it in a fresh normalization.RateCache.
func New(adapters []domain.SourceAdapter, rates domain.RateProvider, cfg Config, log zerolog.Logger) *Pipeline {
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = DefaultAdapterTimeout
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Pipeline{
		adapters: adapters,
		rates:    rates,
		cfg:      cfg,
		now:      time.Now,
		log:      log.With().Str("service", "pipeline").Logger(),
	}
}

// SetClock overrides the time source used for "now" (tests).
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Adapters returns the names of the configured adapters.
func (p *Pipeline) Adapters() []string {
	names := make([]string, 0, len(p.adapters))
	for _, a := range p.adapters {
		names = append(names, a.Name())
	}
	return names
}

// Run processes every vehicle and returns the run snapshot. Results are in
// vehicle order. Only an empty vehicle list or a cancelled context fails
// the run; adapter and conversion failures are absorbed per vehicle.
func (p *Pipeline) Run(ctx context.Context, vehicles []domain.Vehicle) (domain.Snapshot, error) {
	if len(vehicles) == 0 {
		return domain.Snapshot{}, ErrNoVehicles
	}

	runID := uuid.New().String()
	startedAt := p.now()
	log := p.log.With().Str("run_id", runID).Logger()

	run := &run{
		pipeline:   p,
		normalizer: normalization.NewNormalizer(normalization.NewRateCache(p.rates, log), log),
		now:        startedAt,
		log:        log,
	}

	log.Info().
		Int("vehicles", len(vehicles)).
		Int("workers", p.cfg.Workers).
		Strs("adapters", p.Adapters()).
		Msg("Starting collection run")

	results := make([]domain.VehicleResult, len(vehicles))

	if p.cfg.Workers == 1 {
		for i, v := range vehicles {
			if err := ctx.Err(); err != nil {
				return domain.Snapshot{}, fmt.Errorf("run cancelled: %w", err)
			}
			results[i] = run.vehicle(ctx, v)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.cfg.Workers)
		for i, v := range vehicles {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = run.vehicle(gctx, v)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return domain.Snapshot{}, fmt.Errorf("run cancelled: %w", err)
		}
	}

	log.Info().
		Int("vehicles", len(results)).
		Dur("duration", time.Since(startedAt)).
		Msg("Collection run completed")

	return domain.NewSnapshot(runID, startedAt, results), nil
}

// run carries the state shared by all vehicles of one invocation.
// The normalizer's rate cache is the only shared mutable state.
type run struct {
	pipeline   *Pipeline
	normalizer *normalization.Normalizer
	now        time.Time
	log        zerolog.Logger
}

func (r *run) vehicle(ctx context.Context, v domain.Vehicle) domain.VehicleResult {
	log := r.log.With().Str("vehicle", v.Name).Int("year", v.Year).Logger()

	var raw []domain.SaleRecord
	for _, adapter := range r.pipeline.adapters {
		records := r.fetch(ctx, adapter, v, log)
		for _, rec := range records {
			rec.Source = adapter.Name()
			raw = append(raw, rec)
		}
	}

	normalized := r.normalizer.Normalize(ctx, raw)
	unique := dedup.Dedupe(normalized)
	stats, sales := aggregation.Aggregate(unique, r.now)
	if future := aggregation.CountFuture(unique, r.now); future > 0 {
		log.Warn().Int("records", future).Msg("Future-dated sales kept in windows")
	}

	log.Info().
		Int("raw", len(raw)).
		Int("unique", len(unique)).
		Int("sales_5y", len(sales)).
		Int("sample_size_1y", stats.SampleSize1y).
		Msg("Vehicle processed")

	return domain.VehicleResult{
		VehicleName: v.Name,
		VehicleYear: v.Year,
		Stats:       stats,
		Sales5y:     sales,
	}
}

type fetchResult struct {
	records []domain.SaleRecord
	err     error
}

// fetch calls one adapter with a deadline. Errors, panics and timeouts all
// yield zero records.
func (r *run) fetch(ctx context.Context, adapter domain.SourceAdapter, v domain.Vehicle, log zerolog.Logger) []domain.SaleRecord {
	ctx, cancel := context.WithTimeout(ctx, r.pipeline.cfg.AdapterTimeout)
	defer cancel()
	defer utils.OperationTimer("fetch_"+adapter.Name(), slowAdapterCall, log)()

	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fetchResult{err: fmt.Errorf("adapter panic: %v\n%s", rec, debug.Stack())}
			}
		}()
		records, err := adapter.FetchSales(ctx, v)
		done <- fetchResult{records: records, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			log.Warn().Err(res.err).Str("source", adapter.Name()).Msg("Adapter failed, treating as zero records")
			return nil
		}
		log.Debug().Str("source", adapter.Name()).Int("records", len(res.records)).Msg("Adapter returned records")
		return res.records
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Str("source", adapter.Name()).Msg("Adapter timed out, treating as zero records")
		return nil
	}
}
