package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every setting so values from the host do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OUTPUT_DIR", "VEHICLES_FILE", "CORS_ALLOWED_ORIGINS", "LOG_LEVEL", "LOG_PRETTY", "PORT", "DEV_MODE",
		"COLLECT_SCHEDULE", "CLEANUP_SCHEDULE", "MAINTENANCE_SCHEDULE", "RUN_TIMEOUT",
		"PIPELINE_WORKERS", "ADAPTER_TIMEOUT", "FX_API_URL", "FX_TIMEOUT", "FX_CACHE_ENABLED",
		"BAT_ENABLED", "BAT_INCLUDE_BID_TO", "BAT_MAX_RESULTS", "CLASSIC_ENABLED",
		"COLLECTING_CARS_ENABLED", "SCRAPER_REQUESTS_PER_SECOND", "SCRAPER_USER_AGENT",
		"SCRAPER_TIMEOUT", "MARKET_API_URL", "MARKET_API_TOKEN", "MARKET_API_TIMEOUT",
		"MIRROR_S3_BUCKET", "MIRROR_S3_PREFIX", "MIRROR_S3_REGION", "MIRROR_S3_ENDPOINT",
		"MIRROR_S3_ACCESS_KEY_ID", "MIRROR_S3_SECRET_ACCESS_KEY", "MIRROR_RETENTION_DAYS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	clearEnv(t)
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	assert.DirExists(t, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "data", "out"), cfg.OutputDir)
	assert.Equal(t, "vehicles.csv", cfg.VehiclesFile)
	assert.Equal(t, 8002, cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.CollectSchedule)
	assert.Equal(t, 1, cfg.Pipeline.Workers)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.AdapterTimeout)
	assert.Equal(t, "https://api.exchangerate-api.com/v4/latest", cfg.FX.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.FX.Timeout)
	assert.False(t, cfg.FX.CacheEnabled)
	assert.True(t, cfg.Sources.BringATrailerEnabled)
	assert.False(t, cfg.Sources.BringATrailerBidTo)
	assert.Equal(t, 150, cfg.Sources.BringATrailerMax)
	assert.Equal(t, 0.5, cfg.Sources.RequestsPerSecond)
	assert.Empty(t, cfg.Sink.URL)
	assert.Equal(t, 15*time.Second, cfg.Sink.Timeout)
	assert.False(t, cfg.Mirror.Enabled())
	assert.Equal(t, filepath.Join(dir, "data", "client_data.db"), cfg.RateCachePath())
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	clearEnv(t)
	t.Setenv("DATA_DIR", dir)
	t.Setenv("OUTPUT_DIR", "/tmp/market-out")
	t.Setenv("VEHICLES_FILE", "fleet.yaml")
	t.Setenv("COLLECT_SCHEDULE", "0 */6 * * *")
	t.Setenv("PIPELINE_WORKERS", "4")
	t.Setenv("ADAPTER_TIMEOUT", "30")
	t.Setenv("FX_TIMEOUT", "2s")
	t.Setenv("FX_CACHE_ENABLED", "true")
	t.Setenv("BAT_INCLUDE_BID_TO", "true")
	t.Setenv("SCRAPER_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("MARKET_API_URL", "https://market.example.com/ingest")
	t.Setenv("MARKET_API_TOKEN", "secret")
	t.Setenv("MIRROR_S3_BUCKET", "snapshots")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://dash.example.com, https://ops.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/market-out", cfg.OutputDir)
	assert.Equal(t, "fleet.yaml", cfg.VehiclesFile)
	assert.Equal(t, "0 */6 * * *", cfg.CollectSchedule)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.AdapterTimeout)
	assert.Equal(t, 2*time.Second, cfg.FX.Timeout)
	assert.True(t, cfg.FX.CacheEnabled)
	assert.True(t, cfg.Sources.BringATrailerBidTo)
	assert.Equal(t, 2.5, cfg.Sources.RequestsPerSecond)
	assert.Equal(t, "secret", cfg.Sink.Token)
	assert.True(t, cfg.Mirror.Enabled())
	assert.Equal(t, []string{"https://dash.example.com", "https://ops.example.com"}, cfg.CORSOrigins)
}

func TestLoad_InvalidSettings(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr error
	}{
		{"zero workers", "PIPELINE_WORKERS", "0", ErrInvalidWorkers},
		{"negative timeout", "ADAPTER_TIMEOUT", "-5s", ErrInvalidAdapterTimeout},
		{"negative request rate", "SCRAPER_REQUESTS_PER_SECOND", "-1", ErrInvalidRequestRate},
		{"port out of range", "PORT", "70000", ErrInvalidPort},
		{"unsupported vehicle file", "VEHICLES_FILE", "vehicles.xlsx", ErrUnsupportedVehicleFile},
		{"negative retention", "MIRROR_RETENTION_DAYS", "-1", ErrInvalidRetention},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			clearEnv(t)
			t.Setenv("DATA_DIR", dir)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "1m30s")
	assert.Equal(t, 90*time.Second, getEnvAsDuration("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION", "45")
	assert.Equal(t, 45*time.Second, getEnvAsDuration("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION", "soon")
	assert.Equal(t, time.Second, getEnvAsDuration("TEST_DURATION", time.Second))
}

func TestGetEnvFallsBackOnParseErrors(t *testing.T) {
	t.Setenv("TEST_INT", "many")
	t.Setenv("TEST_BOOL", "maybe")
	t.Setenv("TEST_FLOAT", "fast")

	assert.Equal(t, 7, getEnvAsInt("TEST_INT", 7))
	assert.True(t, getEnvAsBool("TEST_BOOL", true))
	assert.Equal(t, 1.5, getEnvAsFloat("TEST_FLOAT", 1.5))
}
