// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/carmarket/internal/modules/vehicles"
	"github.com/aristath/carmarket/internal/utils"
)

// Configuration errors returned by Validate.
var (
	ErrInvalidWorkers         = errors.New("PIPELINE_WORKERS must be at least 1")
	ErrInvalidAdapterTimeout  = errors.New("ADAPTER_TIMEOUT must be positive")
	ErrInvalidRequestRate     = errors.New("SCRAPER_REQUESTS_PER_SECOND must not be negative")
	ErrInvalidPort            = errors.New("PORT must be between 1 and 65535")
	ErrUnsupportedVehicleFile = errors.New("VEHICLES_FILE must be a .csv, .yaml or .yml file")
	ErrInvalidRetention       = errors.New("MIRROR_RETENTION_DAYS must not be negative")
)

// Config holds application configuration
type Config struct {
	DataDir      string // Always absolute
	OutputDir    string
	VehiclesFile string
	LogLevel     string
	LogPretty    bool
	Port         int
	DevMode      bool
	CORSOrigins  []string

	// CollectSchedule is a cron expression. Empty runs once and exits.
	CollectSchedule     string
	CleanupSchedule     string
	MaintenanceSchedule string
	RunTimeout          time.Duration

	Pipeline PipelineConfig
	FX       FXConfig
	Sources  SourcesConfig
	Sink     SinkConfig
	Mirror   MirrorConfig
}

// PipelineConfig holds orchestration settings
type PipelineConfig struct {
	Workers        int
	AdapterTimeout time.Duration
}

// FXConfig holds exchange rate client settings
type FXConfig struct {
	BaseURL      string
	Timeout      time.Duration
	CacheEnabled bool
}

// SourcesConfig holds per-source switches and scraper settings
type SourcesConfig struct {
	BringATrailerEnabled  bool
	BringATrailerBidTo    bool
	BringATrailerMax      int
	ClassicEnabled        bool
	CollectingCarsEnabled bool
	RequestsPerSecond     float64
	UserAgent             string
	HTTPTimeout           time.Duration
}

// SinkConfig holds downstream API settings
type SinkConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// MirrorConfig holds S3-compatible mirror settings
type MirrorConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Enabled reports whether a bucket is configured.
func (m MirrorConfig) Enabled() bool {
	return m.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		OutputDir:    getEnv("OUTPUT_DIR", filepath.Join(absDataDir, "out")),
		VehiclesFile: getEnv("VEHICLES_FILE", "vehicles.csv"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogPretty:    getEnvAsBool("LOG_PRETTY", false),
		Port:         getEnvAsInt("PORT", 8002),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		CORSOrigins:  utils.SplitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		CollectSchedule:     getEnv("COLLECT_SCHEDULE", ""),
		CleanupSchedule:     getEnv("CLEANUP_SCHEDULE", "@daily"),
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 30 3 * * *"),
		RunTimeout:          getEnvAsDuration("RUN_TIMEOUT", 2*time.Hour),

		Pipeline: PipelineConfig{
			Workers:        getEnvAsInt("PIPELINE_WORKERS", 1),
			AdapterTimeout: getEnvAsDuration("ADAPTER_TIMEOUT", 90*time.Second),
		},
		FX: FXConfig{
			BaseURL:      getEnv("FX_API_URL", "https://api.exchangerate-api.com/v4/latest"),
			Timeout:      getEnvAsDuration("FX_TIMEOUT", 10*time.Second),
			CacheEnabled: getEnvAsBool("FX_CACHE_ENABLED", false),
		},
		Sources: SourcesConfig{
			BringATrailerEnabled:  getEnvAsBool("BAT_ENABLED", true),
			BringATrailerBidTo:    getEnvAsBool("BAT_INCLUDE_BID_TO", false),
			BringATrailerMax:      getEnvAsInt("BAT_MAX_RESULTS", 150),
			ClassicEnabled:        getEnvAsBool("CLASSIC_ENABLED", true),
			CollectingCarsEnabled: getEnvAsBool("COLLECTING_CARS_ENABLED", true),
			RequestsPerSecond:     getEnvAsFloat("SCRAPER_REQUESTS_PER_SECOND", 0.5),
			UserAgent:             getEnv("SCRAPER_USER_AGENT", ""), // Empty uses scrape.DefaultUserAgent
			HTTPTimeout:           getEnvAsDuration("SCRAPER_TIMEOUT", 30*time.Second),
		},
		Sink: SinkConfig{
			URL:     getEnv("MARKET_API_URL", ""),
			Token:   getEnv("MARKET_API_TOKEN", ""),
			Timeout: getEnvAsDuration("MARKET_API_TIMEOUT", 15*time.Second),
		},
		Mirror: MirrorConfig{
			Bucket:          getEnv("MIRROR_S3_BUCKET", ""),
			Prefix:          getEnv("MIRROR_S3_PREFIX", "carmarket"),
			Region:          getEnv("MIRROR_S3_REGION", "auto"),
			Endpoint:        getEnv("MIRROR_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("MIRROR_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("MIRROR_S3_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("MIRROR_RETENTION_DAYS", 90),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that would make every run fail.
func (c *Config) Validate() error {
	if c.Pipeline.Workers < 1 {
		return ErrInvalidWorkers
	}
	if c.Pipeline.AdapterTimeout <= 0 {
		return ErrInvalidAdapterTimeout
	}
	if c.Sources.RequestsPerSecond < 0 {
		return ErrInvalidRequestRate
	}
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if !vehicles.SupportedExtension(c.VehiclesFile) {
		return fmt.Errorf("%w: %s", ErrUnsupportedVehicleFile, c.VehiclesFile)
	}
	if c.Mirror.RetentionDays < 0 {
		return ErrInvalidRetention
	}
	return nil
}

// RateCachePath is where the persistent exchange rate cache lives.
func (c *Config) RateCachePath() string {
	return filepath.Join(c.DataDir, "client_data.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
