// Package di provides dependency injection type definitions.
//
// Container holds every long-lived component of the collector. It is built
// by Wire and handed to cmd/collector, which starts the scheduler and the
// HTTP server from it.
package di

import (
	"github.com/aristath/carmarket/internal/clientdata"
	"github.com/aristath/carmarket/internal/clients/exchangerate"
	"github.com/aristath/carmarket/internal/database"
	"github.com/aristath/carmarket/internal/domain"
	"github.com/aristath/carmarket/internal/modules/pipeline"
	"github.com/aristath/carmarket/internal/modules/results"
	"github.com/aristath/carmarket/internal/output"
	"github.com/aristath/carmarket/internal/reliability"
	"github.com/aristath/carmarket/internal/scheduler"
	"github.com/aristath/carmarket/internal/sink"
	"github.com/aristath/carmarket/internal/sources/scrape"
)

// Container holds all dependencies for the application.
type Container struct {
	// ClientDataDB caches exchange rates. Nil unless FX_CACHE_ENABLED.
	ClientDataDB   *database.DB
	ClientDataRepo *clientdata.Repository

	// Clients
	FXClient     *exchangerate.Client
	RateProvider domain.RateProvider
	// Fetchers holds one fetcher per scraping source, keyed by source
	// name, so each source is rate limited on its own.
	Fetchers map[string]*scrape.Fetcher

	Adapters []domain.SourceAdapter
	Pipeline *pipeline.Pipeline

	// Outputs
	Writer *output.Writer
	Sink   *sink.Client
	Mirror *reliability.Mirror // Nil when no bucket is configured

	Store *results.Store
}

// JobInstances holds the scheduled jobs.
type JobInstances struct {
	Collect     *scheduler.CollectJob
	Cleanup     *clientdata.CleanupJob // Nil without a rate cache
	Maintenance *reliability.MaintenanceJob
}

// Close releases resources held by the container.
func (c *Container) Close() error {
	if c == nil || c.ClientDataDB == nil {
		return nil
	}
	return c.ClientDataDB.Close()
}
