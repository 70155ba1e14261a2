package exchangerate

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aristath/carmarket/internal/clientdata"
	"github.com/aristath/carmarket/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func newCache(t *testing.T) *clientdata.Repository {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE exchangerate (pair TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL)`)
	require.NoError(t, err)

	return clientdata.NewRepository(db)
}

// recorder counts requests and remembers the last path
type recorder struct {
	mu   sync.Mutex
	hits int
	path string
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits
}

func (r *recorder) lastPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func rateServer(t *testing.T, status int, body string) (*httptest.Server, *recorder) {
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.hits++
		rec.path = r.URL.Path
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, rec
}

func TestGetRate(t *testing.T) {
	server, rec := rateServer(t, http.StatusOK, `{"base":"EUR","rates":{"USD":1.1,"GBP":0.85}}`)
	client := NewClient(Config{BaseURL: server.URL + "/"}, nil, testLogger())

	rate, err := client.GetRate(context.Background(), "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, 1.1, rate)
	assert.Equal(t, "/EUR", rec.lastPath())
	assert.Equal(t, 1, rec.count())
}

func TestGetRate_SameCurrency(t *testing.T) {
	server, rec := rateServer(t, http.StatusOK, `{}`)
	client := NewClient(Config{BaseURL: server.URL}, nil, testLogger())

	rate, err := client.GetRate(context.Background(), "USD", "USD")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)
	assert.Equal(t, 0, rec.count())
}

func TestGetRate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"garbled body", http.StatusOK, `<html>`},
		{"missing rate", http.StatusOK, `{"rates":{"GBP":0.85}}`},
		{"zero rate", http.StatusOK, `{"rates":{"USD":0}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := rateServer(t, tt.status, tt.body)
			client := NewClient(Config{BaseURL: server.URL}, nil, testLogger())

			_, err := client.GetRate(context.Background(), "EUR", "USD")
			assert.Error(t, err)
		})
	}
}

func TestGetRate_CacheHit(t *testing.T) {
	server, rec := rateServer(t, http.StatusOK, `{"rates":{"USD":1.1}}`)
	client := NewClient(Config{BaseURL: server.URL}, newCache(t), testLogger())
	ctx := context.Background()

	_, err := client.GetRate(ctx, "EUR", "USD")
	require.NoError(t, err)
	rate, err := client.GetRate(ctx, "EUR", "USD")
	require.NoError(t, err)

	assert.Equal(t, 1.1, rate)
	assert.Equal(t, 1, rec.count())
}

func TestGetRate_StaleFallback(t *testing.T) {
	cache := newCache(t)
	ctx := context.Background()
	require.NoError(t, cache.Store(ctx, clientdata.TableExchangeRate, "GBP:USD", cachedExchangeRate{Rate: 1.25}, -time.Hour))

	server, rec := rateServer(t, http.StatusServiceUnavailable, ``)
	client := NewClient(Config{BaseURL: server.URL}, cache, testLogger())

	rate, err := client.GetRate(ctx, "GBP", "USD")
	require.NoError(t, err)
	assert.Equal(t, 1.25, rate)
	assert.Equal(t, 1, rec.count(), "stale entries must not short-circuit the API")
}

func TestGetRate_ContextCancelled(t *testing.T) {
	server, _ := rateServer(t, http.StatusOK, `{"rates":{"USD":1.1}}`)
	client := NewClient(Config{BaseURL: server.URL}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetRate(ctx, "EUR", "USD")
	assert.Error(t, err)
}

func TestUSDProvider(t *testing.T) {
	server, rec := rateServer(t, http.StatusOK, `{"rates":{"USD":1.27}}`)
	provider := NewUSDProvider(NewClient(Config{BaseURL: server.URL}, nil, testLogger()))

	var _ domain.RateProvider = provider

	rate, err := provider.RateToUSD(context.Background(), domain.CurrencyGBP)
	require.NoError(t, err)
	assert.Equal(t, 1.27, rate)
	assert.Equal(t, "/GBP", rec.lastPath())
}
