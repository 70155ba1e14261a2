package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/carmarket/internal/domain"
	"github.com/aristath/carmarket/internal/modules/results"
)

// VehicleSource returns the vehicles to collect. It is read on every run so
// edits to the vehicle file apply without a restart.
type VehicleSource func() ([]domain.Vehicle, error)

// RunnerInterface runs the collection pipeline.
type RunnerInterface interface {
	Run(ctx context.Context, vehicles []domain.Vehicle) (domain.Snapshot, error)
}

// DocumentWriterInterface writes the output documents of a run.
type DocumentWriterInterface interface {
	WriteRun(snap domain.Snapshot) ([]string, error)
}

// SinkInterface publishes a snapshot downstream.
type SinkInterface interface {
	Post(ctx context.Context, snap domain.Snapshot) error
}

// MirrorInterface copies the written documents to object storage.
type MirrorInterface interface {
	MirrorRun(ctx context.Context, snap domain.Snapshot, files []string) error
}

// CollectJob runs one full collection: vehicles, pipeline, documents, sink,
// mirror. The results store guarantees a single run at a time.
type CollectJob struct {
	vehicles VehicleSource
	runner   RunnerInterface
	writer   DocumentWriterInterface
	sink     SinkInterface
	mirror   MirrorInterface
	store    *results.Store
	timeout  time.Duration
	log      zerolog.Logger

	baseCtx context.Context
	wg      sync.WaitGroup
}

// CollectJobConfig holds the collaborators of a CollectJob. Sink and Mirror
// are optional.
type CollectJobConfig struct {
	Vehicles VehicleSource
	Runner   RunnerInterface
	Writer   DocumentWriterInterface
	Sink     SinkInterface
	Mirror   MirrorInterface
	Store    *results.Store
	// Timeout bounds a whole run. Zero means no limit.
	Timeout time.Duration
}

// NewCollectJob creates a new collection job
func NewCollectJob(cfg CollectJobConfig, log zerolog.Logger) *CollectJob {
	store := cfg.Store
	if store == nil {
		store = results.NewStore()
	}
	return &CollectJob{
		vehicles: cfg.Vehicles,
		runner:   cfg.Runner,
		writer:   cfg.Writer,
		sink:     cfg.Sink,
		mirror:   cfg.Mirror,
		store:    store,
		timeout:  cfg.Timeout,
		log:      log.With().Str("job", "collect").Logger(),
		baseCtx:  context.Background(),
	}
}

// SetContext sets the parent context of scheduled and triggered runs.
// Cancelling it aborts the run in progress.
func (j *CollectJob) SetContext(ctx context.Context) {
	j.baseCtx = ctx
}

// Name returns the job name
func (j *CollectJob) Name() string {
	return "collect"
}

// Run executes a scheduled collection. A tick that overlaps a run in
// progress is skipped.
func (j *CollectJob) Run() error {
	_, err := j.Execute(j.baseCtx)
	if errors.Is(err, results.ErrRunInProgress) {
		j.log.Warn().Msg("Previous collection still running, skipping this tick")
		return nil
	}
	return err
}

// Execute runs a collection synchronously and records its outcome.
func (j *CollectJob) Execute(ctx context.Context) (domain.Snapshot, error) {
	if err := j.store.Begin(); err != nil {
		return domain.Snapshot{}, err
	}
	j.wg.Add(1)
	defer j.wg.Done()

	snap, err := j.collect(ctx)
	j.store.Finish(snap, err)
	return snap, err
}

// TriggerRun starts a collection in the background. It returns
// results.ErrRunInProgress when a run is already active.
func (j *CollectJob) TriggerRun() error {
	if err := j.store.Begin(); err != nil {
		return err
	}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		snap, err := j.collect(j.baseCtx)
		if err != nil {
			j.log.Error().Err(err).Msg("Triggered collection failed")
		}
		j.store.Finish(snap, err)
	}()

	j.log.Info().Msg("Collection triggered")
	return nil
}

// Wait blocks until runs started by this job have returned.
func (j *CollectJob) Wait() {
	j.wg.Wait()
}

func (j *CollectJob) collect(ctx context.Context) (domain.Snapshot, error) {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	vehicles, err := j.vehicles()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to load vehicles: %w", err)
	}

	snap, err := j.runner.Run(ctx, vehicles)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("collection run failed: %w", err)
	}

	files, err := j.writer.WriteRun(snap)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to write output documents: %w", err)
	}

	log := j.log.With().Str("run_id", snap.RunID).Logger()
	log.Info().Int("documents", len(files)).Msg("Output documents written")

	// Downstream failures never fail the run; the documents are on disk.
	if j.sink != nil {
		if err := j.sink.Post(ctx, snap); err != nil {
			log.Error().Err(err).Msg("Failed to publish snapshot")
		}
	}
	if j.mirror != nil {
		if err := j.mirror.MirrorRun(ctx, snap, files); err != nil {
			log.Error().Err(err).Msg("Failed to mirror output documents")
		}
	}

	return snap, nil
}
