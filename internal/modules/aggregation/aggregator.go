// Package aggregation derives per-vehicle statistics from deduplicated sales.
package aggregation

import (
	"sort"
	"time"

	"github.com/aristath/carmarket/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Window lengths are fixed multiples of 365 days; leap days are not
// accounted for.
const (
	OneYearDays  = 365
	FiveYearDays = 5 * 365
)

// Aggregate computes stats over records and returns the 5-year window,
// newest first. today is the UTC calendar date of now. Window bounds are
// inclusive and future-dated sales are kept. Records without a sale date
// never qualify for a window or for the last sale.
func Aggregate(records []domain.SaleRecord, now time.Time) (domain.Stats, []domain.SaleRecord) {
	today := domain.DateOf(now)
	oneYear := today.AddDays(-OneYearDays)
	fiveYears := today.AddDays(-FiveYearDays)

	var (
		stats   domain.Stats
		prices  []float64
		sales5y = make([]domain.SaleRecord, 0, len(records))
		last    *domain.SaleRecord
	)

	for i := range records {
		rec := records[i]
		if rec.SaleDate.IsZero() {
			continue
		}

		if !rec.SaleDate.Before(oneYear) && rec.PriceUSD != nil {
			prices = append(prices, *rec.PriceUSD)
		}
		if !rec.SaleDate.Before(fiveYears) {
			sales5y = append(sales5y, rec)
		}
		if last == nil || rec.SaleDate.After(last.SaleDate) {
			last = &records[i]
		}
	}

	if len(prices) > 0 {
		stats.AvgPrice1yUSD = domain.Float(stat.Mean(prices, nil))
		stats.SampleSize1y = len(prices)
	}

	if last != nil {
		stats.LastSaleDate = last.SaleDate
		if last.PriceUSD != nil {
			stats.LastSalePriceUSD = domain.Float(*last.PriceUSD)
		}
	}

	sort.SliceStable(sales5y, func(i, j int) bool {
		return sales5y[i].SaleDate.After(sales5y[j].SaleDate)
	})

	return stats, sales5y
}

// CountFuture returns how many records are dated after the calendar date of
// now. Such records are kept by Aggregate; callers report them.
func CountFuture(records []domain.SaleRecord, now time.Time) int {
	today := domain.DateOf(now)
	n := 0
	for _, rec := range records {
		if !rec.SaleDate.IsZero() && rec.SaleDate.After(today) {
			n++
		}
	}
	return n
}
