// Package collectingcars is the Collecting Cars source. Results are not
// collected yet: the site renders them client-side and this collector only
// parses server-rendered HTML.
package collectingcars

import (
	"context"

	"github.com/aristath/carmarket/internal/domain"
	"github.com/rs/zerolog"
)

// SourceName tags records from this source.
const SourceName = "collecting_cars"

// Adapter implements domain.SourceAdapter and always returns no records.
type Adapter struct {
	log zerolog.Logger
}

// New creates the adapter.
func New(log zerolog.Logger) *Adapter {
	return &Adapter{log: log.With().Str("source", SourceName).Logger()}
}

// Name implements domain.SourceAdapter.
func (a *Adapter) Name() string {
	return SourceName
}

// FetchSales implements domain.SourceAdapter.
func (a *Adapter) FetchSales(_ context.Context, v domain.Vehicle) ([]domain.SaleRecord, error) {
	a.log.Debug().Str("vehicle", v.Name).Msg("Source has no result parser, returning no records")
	return nil, nil
}
