package normalization

import (
	"context"
	"fmt"
	"sync"

	"github.com/aristath/carmarket/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// rateEntry is the settled outcome of one lookup. Failures are cached too so
// a run asks the provider at most once per currency.
type rateEntry struct {
	rate float64
	err  error
}

// RateCache memoizes currency→USD rates for the lifetime of one pipeline run.
// Entries are written once per currency and only read afterwards, so the
// cache can be shared by vehicles processed in parallel.
type RateCache struct {
	provider domain.RateProvider
	mu       sync.RWMutex
	entries  map[domain.Currency]rateEntry
	group    singleflight.Group
	log      zerolog.Logger
}

// NewRateCache creates an empty run-scoped cache in front of provider.
// A nil provider makes every non-USD lookup fail.
func NewRateCache(provider domain.RateProvider, log zerolog.Logger) *RateCache {
	return &RateCache{
		provider: provider,
		entries:  make(map[domain.Currency]rateEntry),
		log:      log.With().Str("component", "rate_cache").Logger(),
	}
}

// RateToUSD returns the cached rate for currency, performing the lookup on
// first use. USD always resolves to 1 without touching the provider.
func (c *RateCache) RateToUSD(ctx context.Context, currency domain.Currency) (float64, error) {
	if currency == domain.CurrencyUSD {
		return 1.0, nil
	}

	if entry, ok := c.lookup(currency); ok {
		return entry.rate, entry.err
	}

	v, _, _ := c.group.Do(string(currency), func() (interface{}, error) {
		if entry, ok := c.lookup(currency); ok {
			return entry, nil
		}

		entry := c.fetch(ctx, currency)

		c.mu.Lock()
		c.entries[currency] = entry
		c.mu.Unlock()

		return entry, nil
	})

	entry := v.(rateEntry)
	return entry.rate, entry.err
}

// Len returns the number of currencies resolved so far, failures included.
func (c *RateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *RateCache) lookup(currency domain.Currency) (rateEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[currency]
	return entry, ok
}

func (c *RateCache) fetch(ctx context.Context, currency domain.Currency) rateEntry {
	if c.provider == nil {
		return rateEntry{err: fmt.Errorf("no rate provider configured for %s", currency)}
	}

	rate, err := c.provider.RateToUSD(ctx, currency)
	if err != nil {
		c.log.Warn().Err(err).Str("currency", string(currency)).Msg("Rate lookup failed")
		return rateEntry{err: fmt.Errorf("rate lookup %s->USD: %w", currency, err)}
	}
	if !domain.ValidAmount(rate) {
		c.log.Warn().Str("currency", string(currency)).Float64("rate", rate).Msg("Rate lookup returned unusable rate")
		return rateEntry{err: fmt.Errorf("rate lookup %s->USD returned %v", currency, rate)}
	}

	c.log.Debug().Str("currency", string(currency)).Float64("rate", rate).Msg("Cached rate for run")
	return rateEntry{rate: rate}
}
