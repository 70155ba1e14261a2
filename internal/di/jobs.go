package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/carmarket/internal/clientdata"
	"github.com/aristath/carmarket/internal/config"
	"github.com/aristath/carmarket/internal/domain"
	"github.com/aristath/carmarket/internal/modules/vehicles"
	"github.com/aristath/carmarket/internal/reliability"
	"github.com/aristath/carmarket/internal/scheduler"
)

// RegisterJobs creates the collection, cleanup and maintenance jobs.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	jobCfg := scheduler.CollectJobConfig{
		Vehicles: func() ([]domain.Vehicle, error) {
			return vehicles.Load(cfg.VehiclesFile)
		},
		Runner:  container.Pipeline,
		Writer:  container.Writer,
		Sink:    container.Sink,
		Store:   container.Store,
		Timeout: cfg.RunTimeout,
	}
	// Leave the interface nil when mirroring is off.
	if container.Mirror != nil {
		jobCfg.Mirror = container.Mirror
	}

	instances := &JobInstances{
		Collect: scheduler.NewCollectJob(jobCfg, log),
	}

	var checkpointer reliability.Checkpointer
	if container.ClientDataDB != nil {
		checkpointer = container.ClientDataDB
		instances.Cleanup = clientdata.NewCleanupJob(container.ClientDataRepo, log)
	}
	instances.Maintenance = reliability.NewMaintenanceJob(
		checkpointer,
		container.Mirror,
		cfg.DataDir,
		cfg.Mirror.RetentionDays,
		log,
	)

	return instances, nil
}

// ScheduleJobs registers the periodic jobs with s. The collect job is only
// scheduled when a collect schedule is configured.
func ScheduleJobs(s *scheduler.Scheduler, jobs *JobInstances, cfg *config.Config) error {
	if cfg.CollectSchedule != "" {
		if err := s.AddJob(cfg.CollectSchedule, jobs.Collect); err != nil {
			return err
		}
	}
	if jobs.Cleanup != nil {
		if err := s.AddJob(cfg.CleanupSchedule, jobs.Cleanup); err != nil {
			return err
		}
	}
	if err := s.AddJob(cfg.MaintenanceSchedule, jobs.Maintenance); err != nil {
		return err
	}
	return nil
}
