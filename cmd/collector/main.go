// Command collector gathers vehicle auction sales, converts prices to USD
// and writes per-vehicle market statistics.
//
// Without COLLECT_SCHEDULE it runs one collection and exits. With a
// schedule it keeps running: cron jobs plus the read API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/carmarket/internal/config"
	"github.com/aristath/carmarket/internal/di"
	"github.com/aristath/carmarket/internal/scheduler"
	"github.com/aristath/carmarket/internal/server"
	"github.com/aristath/carmarket/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	log.Info().
		Str("vehicles_file", cfg.VehiclesFile).
		Str("output_dir", cfg.OutputDir).
		Msg("Starting collector")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	jobs.Collect.SetContext(ctx)

	if cfg.CollectSchedule == "" {
		err := runOnce(ctx, jobs, log)
		container.Close()
		if err != nil {
			log.Fatal().Err(err).Msg("Collection failed")
		}
		return
	}

	runScheduled(ctx, cfg, container, jobs, log)
	container.Close()
}

func runOnce(ctx context.Context, jobs *di.JobInstances, log zerolog.Logger) error {
	snap, err := jobs.Collect.Execute(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Str("run_id", snap.RunID).
		Int("vehicles", snap.VehicleCount).
		Msg("Collection finished")
	return nil
}

func runScheduled(ctx context.Context, cfg *config.Config, container *di.Container, jobs *di.JobInstances, log zerolog.Logger) {
	sched := scheduler.New(log)
	if err := di.ScheduleJobs(sched, jobs, cfg); err != nil {
		container.Close()
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}

	srv := server.New(server.Config{
		Log:            log,
		Port:           cfg.Port,
		DevMode:        cfg.DevMode,
		DataDir:        cfg.DataDir,
		AllowedOrigins: cfg.CORSOrigins,
		Store:          container.Store,
		Trigger:        jobs.Collect,
		DB:             container.ClientDataDB,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	sched.Start()

	// First collection at startup instead of waiting for the first tick.
	if err := jobs.Collect.TriggerRun(); err != nil {
		log.Warn().Err(err).Msg("Startup collection not started")
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	sched.Stop()
	jobs.Collect.Wait()

	log.Info().Msg("Collector stopped")
}
