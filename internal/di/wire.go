package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/carmarket/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Rate cache database (optional)
// 2. Clients, adapters, pipeline and outputs
// 3. Jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	container := &Container{}

	if err := InitializeDatabases(container, cfg, log); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().
		Strs("adapters", container.Pipeline.Adapters()).
		Bool("rate_cache", container.ClientDataDB != nil).
		Bool("sink", container.Sink.Enabled()).
		Bool("mirror", container.Mirror != nil).
		Msg("Dependencies wired")

	return container, jobs, nil
}
