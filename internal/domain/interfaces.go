package domain

import "context"

// SourceAdapter fetches raw sale records for a vehicle from one marketplace.
// "No results" is an empty slice and a nil error; an error is reserved for
// failures of the adapter itself.
type SourceAdapter interface {
	// Name is the source identifier stamped on every record (e.g. "bring_a_trailer").
	Name() string

	// FetchSales returns the sales found for the vehicle.
	FetchSales(ctx context.Context, vehicle Vehicle) ([]SaleRecord, error)
}

// RateProvider looks up the current conversion rate from a currency to USD.
type RateProvider interface {
	RateToUSD(ctx context.Context, currency Currency) (float64, error)
}
