// Package dedup removes repeated observations of the same sale.
package dedup

import (
	"strings"

	"github.com/aristath/carmarket/internal/domain"
	"github.com/shopspring/decimal"
)

// missing stands in for an absent date or price so that two records both
// lacking the field compare equal.
const missing = "missing"

// Key identifies one sale observation within a single source.
// Records from different sources never share a key.
type Key struct {
	Source   string
	URL      string
	SaleDate string
	Price    string
	Currency string
}

// KeyOf builds the dedup key for rec. Price is rounded to 2 decimals and
// currency is upper-cased, so the key does not depend on normalization.
// A NaN or infinite price keys as missing.
func KeyOf(rec domain.SaleRecord) Key {
	key := Key{
		Source:   rec.Source,
		URL:      rec.URLOrEmpty(),
		SaleDate: missing,
		Price:    missing,
		Currency: strings.ToUpper(strings.TrimSpace(string(rec.Currency))),
	}
	if !rec.SaleDate.IsZero() {
		key.SaleDate = rec.SaleDate.String()
	}
	if rec.Price != nil && domain.Finite(*rec.Price) {
		key.Price = decimal.NewFromFloat(*rec.Price).Round(2).String()
	}
	return key
}

// Dedupe keeps the first record for each key, in input order.
// Applying it twice yields the same result as applying it once.
func Dedupe(records []domain.SaleRecord) []domain.SaleRecord {
	seen := make(map[Key]struct{}, len(records))
	out := make([]domain.SaleRecord, 0, len(records))

	for _, rec := range records {
		k := KeyOf(rec)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rec)
	}

	return out
}
