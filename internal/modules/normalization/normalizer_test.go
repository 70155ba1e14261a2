package normalization

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aristath/carmarket/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRateProvider serves fixed rates and counts lookups per currency
type mockRateProvider struct {
	mu    sync.Mutex
	rates map[domain.Currency]float64
	err   error
	calls map[domain.Currency]int
}

func newMockRateProvider(rates map[domain.Currency]float64) *mockRateProvider {
	return &mockRateProvider{rates: rates, calls: make(map[domain.Currency]int)}
}

func (m *mockRateProvider) RateToUSD(_ context.Context, currency domain.Currency) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[currency]++
	if m.err != nil {
		return 0, m.err
	}
	rate, ok := m.rates[currency]
	if !ok {
		return 0, errors.New("rate not found")
	}
	return rate, nil
}

func (m *mockRateProvider) callCount(currency domain.Currency) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[currency]
}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func sale(price float64, currency string) domain.SaleRecord {
	return domain.SaleRecord{
		SaleDate: domain.MustParseDate("2025-01-01"),
		Price:    domain.Float(price),
		Currency: domain.Currency(currency),
		Source:   "bring_a_trailer",
	}
}

func TestNormalize_USDPassThroughIgnoresProvider(t *testing.T) {
	provider := newMockRateProvider(nil)
	provider.err = errors.New("provider down")
	n := NewNormalizer(NewRateCache(provider, testLogger()), testLogger())

	out := n.Normalize(context.Background(), []domain.SaleRecord{sale(100000.004, "usd")})

	require.Len(t, out, 1)
	require.NotNil(t, out[0].PriceUSD)
	assert.Equal(t, 100000.004, *out[0].PriceUSD)
	assert.Equal(t, domain.CurrencyUSD, out[0].Currency)
	assert.Equal(t, 0, provider.callCount(domain.CurrencyUSD))
}

func TestNormalize_ConvertsWithRate(t *testing.T) {
	provider := newMockRateProvider(map[domain.Currency]float64{domain.CurrencyEUR: 1.1})
	n := NewNormalizer(NewRateCache(provider, testLogger()), testLogger())

	out := n.Normalize(context.Background(), []domain.SaleRecord{sale(90000, "EUR")})

	require.Len(t, out, 1)
	require.NotNil(t, out[0].PriceUSD)
	assert.Equal(t, 99000.0, *out[0].PriceUSD)
	assert.Equal(t, 90000.0, *out[0].Price)
}

func TestNormalize_FailedLookupLeavesNullForEveryRecord(t *testing.T) {
	provider := newMockRateProvider(map[domain.Currency]float64{domain.CurrencyEUR: 1.1})
	n := NewNormalizer(NewRateCache(provider, testLogger()), testLogger())

	records := []domain.SaleRecord{sale(50000, "GBP"), sale(60000, "EUR"), sale(70000, "gbp")}
	out := n.Normalize(context.Background(), records)

	require.Len(t, out, 3)
	assert.Nil(t, out[0].PriceUSD)
	assert.NotNil(t, out[1].PriceUSD)
	assert.Nil(t, out[2].PriceUSD)
	assert.Equal(t, domain.CurrencyGBP, out[2].Currency)
	assert.Equal(t, 1, provider.callCount(domain.CurrencyGBP))
}

func TestNormalize_OneLookupPerCurrency(t *testing.T) {
	provider := newMockRateProvider(map[domain.Currency]float64{domain.CurrencyEUR: 1.1, domain.CurrencyGBP: 1.27})
	n := NewNormalizer(NewRateCache(provider, testLogger()), testLogger())

	records := []domain.SaleRecord{sale(1, "EUR"), sale(2, "eur"), sale(3, "GBP"), sale(4, "EUR"), sale(5, "GBP")}
	n.Normalize(context.Background(), records)
	n.Normalize(context.Background(), records)

	assert.Equal(t, 1, provider.callCount(domain.CurrencyEUR))
	assert.Equal(t, 1, provider.callCount(domain.CurrencyGBP))
}

func TestNormalize_AlreadyNormalizedIsNotReconverted(t *testing.T) {
	provider := newMockRateProvider(map[domain.Currency]float64{domain.CurrencyEUR: 2})
	n := NewNormalizer(NewRateCache(provider, testLogger()), testLogger())

	rec := sale(100, "EUR")
	rec.PriceUSD = domain.Float(110)

	out := n.Normalize(context.Background(), []domain.SaleRecord{rec})

	require.Len(t, out, 1)
	assert.Equal(t, 110.0, *out[0].PriceUSD)
	assert.Equal(t, 0, provider.callCount(domain.CurrencyEUR))
}

func TestNormalize_MissingOrNonPositivePrice(t *testing.T) {
	n := NewNormalizer(NewRateCache(newMockRateProvider(nil), testLogger()), testLogger())

	missing := sale(0, "USD")
	missing.Price = nil
	zero := sale(0, "USD")

	out := n.Normalize(context.Background(), []domain.SaleRecord{missing, zero})

	require.Len(t, out, 2)
	assert.Nil(t, out[0].PriceUSD)
	assert.Nil(t, out[1].PriceUSD)
}

func TestNormalize_NonFiniteAmountsAreCleared(t *testing.T) {
	provider := newMockRateProvider(map[domain.Currency]float64{domain.CurrencyEUR: 1.1})
	n := NewNormalizer(NewRateCache(provider, testLogger()), testLogger())

	nan := sale(math.NaN(), "EUR")
	inf := sale(math.Inf(1), "EUR")
	badUSD := sale(100, "EUR")
	badUSD.PriceUSD = domain.Float(math.NaN())

	var out []domain.SaleRecord
	require.NotPanics(t, func() {
		out = n.Normalize(context.Background(), []domain.SaleRecord{nan, inf, badUSD})
	})

	require.Len(t, out, 3)
	assert.Nil(t, out[0].Price)
	assert.Nil(t, out[0].PriceUSD)
	assert.Nil(t, out[1].Price)
	assert.Nil(t, out[1].PriceUSD)
	require.NotNil(t, out[2].PriceUSD)
	assert.InDelta(t, 110.0, *out[2].PriceUSD, 1e-9)
}

func TestToUSD_NonFiniteInputs(t *testing.T) {
	provider := newMockRateProvider(map[domain.Currency]float64{
		domain.CurrencyEUR: math.NaN(),
		domain.CurrencyGBP: 1.25,
	})
	n := NewNormalizer(provider, testLogger())

	_, ok := n.ToUSD(context.Background(), math.Inf(1), domain.CurrencyGBP)
	assert.False(t, ok)
	_, ok = n.ToUSD(context.Background(), math.NaN(), domain.CurrencyUSD)
	assert.False(t, ok)
	_, ok = n.ToUSD(context.Background(), 100, domain.CurrencyEUR)
	assert.False(t, ok)
}

func TestNormalize_DropsInvalidCurrency(t *testing.T) {
	n := NewNormalizer(NewRateCache(newMockRateProvider(nil), testLogger()), testLogger())

	out := n.Normalize(context.Background(), []domain.SaleRecord{sale(1, "$"), sale(2, "USD"), sale(3, "")})

	require.Len(t, out, 1)
	assert.Equal(t, 2.0, *out[0].Price)
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	n := NewNormalizer(NewRateCache(newMockRateProvider(nil), testLogger()), testLogger())

	records := []domain.SaleRecord{sale(10, "usd")}
	n.Normalize(context.Background(), records)

	assert.Nil(t, records[0].PriceUSD)
	assert.Equal(t, domain.Currency("usd"), records[0].Currency)
}

func TestToUSD_NilProvider(t *testing.T) {
	n := NewNormalizer(nil, testLogger())

	usd, ok := n.ToUSD(context.Background(), 10, domain.CurrencyUSD)
	assert.True(t, ok)
	assert.Equal(t, 10.0, usd)

	_, ok = n.ToUSD(context.Background(), 10, domain.CurrencyEUR)
	assert.False(t, ok)
}

func TestRateCache_NonPositiveRateIsFailure(t *testing.T) {
	provider := newMockRateProvider(map[domain.Currency]float64{domain.CurrencyEUR: 0})
	cache := NewRateCache(provider, testLogger())

	_, err := cache.RateToUSD(context.Background(), domain.CurrencyEUR)
	assert.Error(t, err)

	_, err = cache.RateToUSD(context.Background(), domain.CurrencyEUR)
	assert.Error(t, err)
	assert.Equal(t, 1, provider.callCount(domain.CurrencyEUR))
}

func TestRateCache_NilProvider(t *testing.T) {
	cache := NewRateCache(nil, testLogger())

	rate, err := cache.RateToUSD(context.Background(), domain.CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)

	_, err = cache.RateToUSD(context.Background(), domain.CurrencyEUR)
	assert.Error(t, err)
}

func TestRateCache_ConcurrentFirstLookupsCollapse(t *testing.T) {
	var calls int32
	provider := rateFunc(func(ctx context.Context, c domain.Currency) (float64, error) {
		atomic.AddInt32(&calls, 1)
		return 1.25, nil
	})
	cache := NewRateCache(provider, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rate, err := cache.RateToUSD(context.Background(), domain.CurrencyGBP)
			assert.NoError(t, err)
			assert.Equal(t, 1.25, rate)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, cache.Len())
}

type rateFunc func(ctx context.Context, c domain.Currency) (float64, error)

func (f rateFunc) RateToUSD(ctx context.Context, c domain.Currency) (float64, error) {
	return f(ctx, c)
}
