// Package domain provides the sale, vehicle and result models shared by the
// collection pipeline.
package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Currency represents an ISO-like 3-letter currency code
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// NormalizeCurrency canonicalizes a raw currency code to upper case.
// ok is false when the result is not exactly three ASCII letters.
func NormalizeCurrency(raw string) (Currency, bool) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 3 {
		return Currency(code), false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return Currency(code), false
		}
	}
	return Currency(code), true
}

// SaleRecord is one observed auction sale.
// Nil pointers mean the value is absent: a nil PriceUSD signals a failed
// conversion, never zero.
type SaleRecord struct {
	SaleDate     Date     `json:"sale_date"`
	Price        *float64 `json:"price"`
	Currency     Currency `json:"currency"`
	PriceUSD     *float64 `json:"price_usd"`
	Source       string   `json:"source"`
	AuctionHouse string   `json:"auction_house"`
	Location     string   `json:"location"`
	URL          *string  `json:"url"`
}

// HasPrice reports whether the record carries a positive, finite price.
func (r SaleRecord) HasPrice() bool {
	return r.Price != nil && ValidAmount(*r.Price)
}

// ValidAmount reports whether v is a usable money amount: finite and positive.
func ValidAmount(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// URLOrEmpty returns the record URL or "" when absent.
func (r SaleRecord) URLOrEmpty() string {
	if r.URL == nil {
		return ""
	}
	return *r.URL
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// String returns a pointer to s, or nil when s is empty.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Vehicle identifies one vehicle to collect sales for.
type Vehicle struct {
	Name             string `json:"name" yaml:"name"`
	Year             int    `json:"year" yaml:"year"`
	Make             string `json:"make" yaml:"make"`
	Model            string `json:"model" yaml:"model"`
	Variant          string `json:"variant,omitempty" yaml:"variant"`
	ClassicMarketURL string `json:"classic_market_url,omitempty" yaml:"classic_market_url"`
}

// Query builds the free-text search used by marketplace adapters,
// e.g. "1995 Porsche 911 Turbo".
func (v Vehicle) Query() string {
	parts := make([]string, 0, 4)
	if v.Year > 0 {
		parts = append(parts, strconv.Itoa(v.Year))
	}
	for _, p := range []string{v.Make, v.Model, v.Variant} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Stats are the per-vehicle summary statistics. Nil fields mean no
// qualifying sale exists.
type Stats struct {
	AvgPrice1yUSD    *float64 `json:"avg_price_1y_usd"`
	SampleSize1y     int      `json:"sample_size_1y"`
	LastSalePriceUSD *float64 `json:"last_sale_price_usd"`
	LastSaleDate     Date     `json:"last_sale_date"`
}

// VehicleResult is the output document produced for one vehicle per run.
type VehicleResult struct {
	VehicleName string       `json:"vehicle_name"`
	VehicleYear int          `json:"vehicle_year"`
	Stats       Stats        `json:"stats"`
	Sales5y     []SaleRecord `json:"sales_5y"`
}

// Snapshot is the envelope for every vehicle result produced by one run.
type Snapshot struct {
	RunID        string          `json:"run_id"`
	GeneratedAt  time.Time       `json:"generated_at"`
	VehicleCount int             `json:"vehicle_count"`
	Vehicles     []VehicleResult `json:"vehicles"`
}

// NewSnapshot wraps results in a run envelope.
func NewSnapshot(runID string, generatedAt time.Time, results []VehicleResult) Snapshot {
	if results == nil {
		results = []VehicleResult{}
	}
	return Snapshot{
		RunID:        runID,
		GeneratedAt:  generatedAt.UTC(),
		VehicleCount: len(results),
		Vehicles:     results,
	}
}
