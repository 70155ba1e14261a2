package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/carmarket/internal/clientdata"
	"github.com/aristath/carmarket/internal/config"
	"github.com/aristath/carmarket/internal/database"
)

// InitializeDatabases opens the exchange rate cache when it is enabled and
// applies its schema. Sale data is never stored.
func InitializeDatabases(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if !cfg.FX.CacheEnabled {
		log.Debug().Msg("Exchange rate cache disabled")
		return nil
	}

	db, err := database.New(database.Config{
		Path: cfg.RateCachePath(),
		Name: "client_data",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize client_data database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to migrate client_data database: %w", err)
	}

	container.ClientDataDB = db
	container.ClientDataRepo = clientdata.NewRepository(db.Conn())

	log.Info().Str("path", db.Path()).Msg("Exchange rate cache ready")
	return nil
}
