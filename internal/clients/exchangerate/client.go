// Package exchangerate fetches currency exchange rates from exchangerate-api.com,
// with an optional persistent cache.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/carmarket/internal/clientdata"
	"github.com/aristath/carmarket/internal/domain"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public v4 endpoint; rates are fetched from {base}/{FROM}.
const DefaultBaseURL = "https://api.exchangerate-api.com/v4/latest"

// Cache is the subset of the client data repository used by the client.
type Cache interface {
	Store(ctx context.Context, table, key string, data interface{}, ttl time.Duration) error
	GetIfFresh(ctx context.Context, table, key string) (json.RawMessage, error)
	Get(ctx context.Context, table, key string) (json.RawMessage, error)
}

// Config configures the client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client for exchangerate-api.com
type Client struct {
	baseURL string
	client  *http.Client
	cache   Cache
	log     zerolog.Logger
}

// NewClient creates a new exchangerate-api.com client.
// cache is optional; if nil, caching is disabled.
func NewClient(cfg Config, cache Cache, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		cache:   cache,
		log:     log.With().Str("client", "exchangerate-api").Logger(),
	}
}

// cachedExchangeRate is the structure stored in the cache
type cachedExchangeRate struct {
	Rate float64 `json:"rate"`
}

// latestResponse is the relevant part of the API payload.
type latestResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// GetRate returns how many units of toCurrency one unit of fromCurrency buys.
// A fresh cached rate is used first. If the API fails, a stale cached rate
// is returned when available.
func (c *Client) GetRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error) {
	if fromCurrency == toCurrency {
		return 1.0, nil
	}

	pair := fromCurrency + ":" + toCurrency

	if rate, ok := c.fromCache(ctx, pair, true); ok {
		c.log.Debug().Str("pair", pair).Float64("rate", rate).Msg("Cache hit")
		return rate, nil
	}

	rate, err := c.fetch(ctx, fromCurrency, toCurrency)
	if err != nil {
		if stale, ok := c.fromCache(ctx, pair, false); ok {
			c.log.Warn().Err(err).Str("pair", pair).Float64("rate", stale).Msg("API failed, using stale cached rate")
			return stale, nil
		}
		return 0, err
	}

	if c.cache != nil {
		if err := c.cache.Store(ctx, clientdata.TableExchangeRate, pair, cachedExchangeRate{Rate: rate}, clientdata.TTLExchangeRate); err != nil {
			c.log.Warn().Err(err).Str("pair", pair).Msg("Failed to cache exchange rate")
		}
	}

	c.log.Info().Str("from", fromCurrency).Str("to", toCurrency).Float64("rate", rate).Msg("Fetched rate")
	return rate, nil
}

func (c *Client) fetch(ctx context.Context, fromCurrency, toCurrency string) (float64, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, fromCurrency)
	c.log.Debug().Str("url", url).Msg("Fetching rates")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}

	rate, ok := result.Rates[toCurrency]
	if !ok {
		return 0, fmt.Errorf("rate not found for %s->%s", fromCurrency, toCurrency)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("invalid rate %v for %s->%s", rate, fromCurrency, toCurrency)
	}

	return rate, nil
}

// fromCache reads a cached rate. fresh selects GetIfFresh over Get.
func (c *Client) fromCache(ctx context.Context, pair string, fresh bool) (float64, bool) {
	if c.cache == nil {
		return 0, false
	}

	var data json.RawMessage
	var err error
	if fresh {
		data, err = c.cache.GetIfFresh(ctx, clientdata.TableExchangeRate, pair)
	} else {
		data, err = c.cache.Get(ctx, clientdata.TableExchangeRate, pair)
	}
	if err != nil || data == nil {
		return 0, false
	}

	var cached cachedExchangeRate
	if err := json.Unmarshal(data, &cached); err != nil || cached.Rate <= 0 {
		return 0, false
	}
	return cached.Rate, true
}

// USDProvider adapts the client to domain.RateProvider.
type USDProvider struct {
	client *Client
}

// NewUSDProvider wraps client as a currency→USD rate provider.
func NewUSDProvider(client *Client) *USDProvider {
	return &USDProvider{client: client}
}

// RateToUSD implements domain.RateProvider.
func (p *USDProvider) RateToUSD(ctx context.Context, currency domain.Currency) (float64, error) {
	return p.client.GetRate(ctx, string(currency), string(domain.CurrencyUSD))
}
