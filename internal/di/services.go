package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/carmarket/internal/clients/exchangerate"
	"github.com/aristath/carmarket/internal/config"
	"github.com/aristath/carmarket/internal/domain"
	"github.com/aristath/carmarket/internal/modules/pipeline"
	"github.com/aristath/carmarket/internal/modules/results"
	"github.com/aristath/carmarket/internal/output"
	"github.com/aristath/carmarket/internal/reliability"
	"github.com/aristath/carmarket/internal/sink"
	"github.com/aristath/carmarket/internal/sources/bringatrailer"
	"github.com/aristath/carmarket/internal/sources/classiccom"
	"github.com/aristath/carmarket/internal/sources/collectingcars"
	"github.com/aristath/carmarket/internal/sources/scrape"
)

// InitializeServices builds clients, adapters, the pipeline and the outputs.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	// The repository is passed only when it exists; a typed nil would
	// look like an enabled cache to the client.
	var cache exchangerate.Cache
	if container.ClientDataRepo != nil {
		cache = container.ClientDataRepo
	}
	container.FXClient = exchangerate.NewClient(exchangerate.Config{
		BaseURL: cfg.FX.BaseURL,
		Timeout: cfg.FX.Timeout,
	}, cache, log)
	container.RateProvider = exchangerate.NewUSDProvider(container.FXClient)

	container.Adapters, container.Fetchers = buildAdapters(cfg, log)
	if len(container.Adapters) == 0 {
		log.Warn().Msg("All sources are disabled; every vehicle will report empty statistics")
	}

	container.Pipeline = pipeline.New(container.Adapters, container.RateProvider, pipeline.Config{
		Workers:        cfg.Pipeline.Workers,
		AdapterTimeout: cfg.Pipeline.AdapterTimeout,
	}, log)

	container.Writer = output.NewWriter(cfg.OutputDir, log)
	container.Sink = sink.NewClient(sink.Config{
		URL:     cfg.Sink.URL,
		Token:   cfg.Sink.Token,
		Timeout: cfg.Sink.Timeout,
	}, log)

	if cfg.Mirror.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := reliability.NewS3Store(ctx, reliability.S3Config{
			Bucket:          cfg.Mirror.Bucket,
			Region:          cfg.Mirror.Region,
			Endpoint:        cfg.Mirror.Endpoint,
			AccessKeyID:     cfg.Mirror.AccessKeyID,
			SecretAccessKey: cfg.Mirror.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize mirror store: %w", err)
		}
		container.Mirror = reliability.NewMirror(store, cfg.Mirror.Prefix, log)
	}

	container.Store = results.NewStore()

	return nil
}

// buildAdapters returns the enabled adapters in a fixed order, plus the
// fetcher created for each scraping source. Order matters: it decides
// which duplicate survives deduplication.
func buildAdapters(cfg *config.Config, log zerolog.Logger) ([]domain.SourceAdapter, map[string]*scrape.Fetcher) {
	var adapters []domain.SourceAdapter
	fetchers := make(map[string]*scrape.Fetcher)

	newFetcher := func(source string) *scrape.Fetcher {
		f := scrape.NewFetcher(scrape.Config{
			RequestsPerSecond: cfg.Sources.RequestsPerSecond,
			Timeout:           cfg.Sources.HTTPTimeout,
			UserAgent:         cfg.Sources.UserAgent,
		}, log.With().Str("source", source).Logger())
		fetchers[source] = f
		return f
	}

	if cfg.Sources.BringATrailerEnabled {
		adapters = append(adapters, bringatrailer.New(bringatrailer.Config{
			IncludeBidTo: cfg.Sources.BringATrailerBidTo,
			MaxResults:   cfg.Sources.BringATrailerMax,
		}, newFetcher(bringatrailer.SourceName), log))
	}
	if cfg.Sources.ClassicEnabled {
		adapters = append(adapters, classiccom.New(newFetcher(classiccom.SourceName), log))
	}
	if cfg.Sources.CollectingCarsEnabled {
		adapters = append(adapters, collectingcars.New(log))
	}

	return adapters, fetchers
}
