// Package normalization converts raw sale records to the common schema:
// canonical currency codes and a USD price looked up once per currency per run.
//
// The rate is the provider's current rate, not the rate on the sale date.
// Historical conversion is a known approximation of this package.
package normalization

import (
	"context"

	"github.com/aristath/carmarket/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Normalizer fills PriceUSD on sale records.
type Normalizer struct {
	rates domain.RateProvider
	log   zerolog.Logger
}

// NewNormalizer creates a normalizer backed by rates, normally a run-scoped *RateCache.
func NewNormalizer(rates domain.RateProvider, log zerolog.Logger) *Normalizer {
	return &Normalizer{
		rates: rates,
		log:   log.With().Str("service", "normalizer").Logger(),
	}
}

// ToUSD converts price in currency to USD. ok is false when the price is
// missing or the rate lookup fails; callers store that as a null USD value.
func (n *Normalizer) ToUSD(ctx context.Context, price float64, currency domain.Currency) (float64, bool) {
	if !domain.ValidAmount(price) {
		return 0, false
	}
	if currency == domain.CurrencyUSD {
		return price, true
	}
	if n.rates == nil {
		return 0, false
	}

	rate, err := n.rates.RateToUSD(ctx, currency)
	if err != nil || !domain.ValidAmount(rate) {
		return 0, false
	}

	usd := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(rate)).InexactFloat64()
	if !domain.ValidAmount(usd) {
		return 0, false
	}
	return usd, true
}

// Normalize returns normalized copies of records, in input order.
// Records with an unusable currency code are dropped; records whose
// conversion fails keep a nil PriceUSD. Records that already carry a
// PriceUSD are passed through unchanged. NaN or infinite amounts are
// cleared to nil.
func (n *Normalizer) Normalize(ctx context.Context, records []domain.SaleRecord) []domain.SaleRecord {
	out := make([]domain.SaleRecord, 0, len(records))
	unconverted := 0

	for _, rec := range records {
		if rec.Price != nil && !domain.Finite(*rec.Price) {
			n.log.Warn().
				Str("source", rec.Source).
				Str("sale_date", rec.SaleDate.String()).
				Msg("Clearing non-finite price")
			rec.Price = nil
		}
		if rec.PriceUSD != nil && !domain.Finite(*rec.PriceUSD) {
			rec.PriceUSD = nil
		}

		if rec.PriceUSD != nil {
			out = append(out, rec)
			continue
		}

		currency, ok := domain.NormalizeCurrency(string(rec.Currency))
		if !ok {
			n.log.Warn().
				Str("source", rec.Source).
				Str("currency", string(rec.Currency)).
				Str("sale_date", rec.SaleDate.String()).
				Msg("Dropping record with invalid currency code")
			continue
		}
		rec.Currency = currency

		if rec.HasPrice() {
			if usd, ok := n.ToUSD(ctx, *rec.Price, currency); ok {
				rec.PriceUSD = domain.Float(usd)
			}
		}
		if rec.PriceUSD == nil {
			unconverted++
		}

		out = append(out, rec)
	}

	if unconverted > 0 {
		n.log.Debug().Int("unconverted", unconverted).Int("total", len(out)).Msg("Records left without USD price")
	}

	return out
}
