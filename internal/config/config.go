// Package config loads pipeline configuration from the environment.
// A .env file in the working directory is honored when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultAPIBaseURL   = "https://api.coingecko.com/api/v3"
	DefaultVsCurrency   = "usd"
	DefaultAssetIDs     = "bitcoin,ethereum"
	DefaultTimeout      = 15 * time.Second
	DefaultMaxRetries   = 5
	DefaultBackoffBase  = 500 * time.Millisecond
	DefaultBackoffMax   = 10 * time.Second
	DefaultPerPage      = 250
	DefaultArchiveDir   = "data"
	DefaultLogDir       = "logs"
	DefaultTableName    = "crypto_price_snapshots"
	DefaultLoadPageSize = 1000
	DefaultJobName      = "coingecko_daily_snapshot"
)

// Config carries every tunable of the pipeline. Components receive it (or
// the relevant fields) at construction; nothing reads the environment later.
type Config struct {
	// Extraction
	APIBaseURL  string
	VsCurrency  string
	AssetIDs    []string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	PerPage     int

	// Artifacts
	ArchiveDir string
	LogDir     string

	// Persistence
	DatabaseURL   string
	TableName     string
	LoadPageSize  int
	ClickHouseURL string // optional analytics mirror; empty disables it

	// Observability
	JobName    string
	WebhookURL string // optional; empty disables notifications
}

// Load reads configuration from the environment, after merging a .env file
// if one exists.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:    getEnv("COINGECKO_API_BASE", DefaultAPIBaseURL),
		VsCurrency:    getEnv("COINGECKO_VS_CURRENCY", DefaultVsCurrency),
		AssetIDs:      splitIDs(getEnv("COINGECKO_IDS", DefaultAssetIDs)),
		ArchiveDir:    getEnv("ARCHIVE_DIR", DefaultArchiveDir),
		LogDir:        getEnv("LOG_DIR", DefaultLogDir),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		TableName:     getEnv("CRYPTO_TABLE", DefaultTableName),
		ClickHouseURL: os.Getenv("CLICKHOUSE_URL"),
		JobName:       getEnv("ETL_JOB_NAME", DefaultJobName),
		WebhookURL:    os.Getenv("SLACK_WEBHOOK_URL"),
	}

	var err error
	if cfg.Timeout, err = getDuration("HTTP_TIMEOUT", DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = getInt("HTTP_MAX_RETRIES", DefaultMaxRetries); err != nil {
		return nil, err
	}
	if cfg.BackoffBase, err = getDuration("HTTP_BACKOFF_BASE", DefaultBackoffBase); err != nil {
		return nil, err
	}
	if cfg.BackoffMax, err = getDuration("HTTP_BACKOFF_MAX", DefaultBackoffMax); err != nil {
		return nil, err
	}
	if cfg.PerPage, err = getInt("COINGECKO_PER_PAGE", DefaultPerPage); err != nil {
		return nil, err
	}
	if cfg.LoadPageSize, err = getInt("LOAD_PAGE_SIZE", DefaultLoadPageSize); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the fields the full pipeline cannot run without.
// Fetch-only tools (cmd/preview, cmd/export) skip this.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be set")
	}
	if len(c.AssetIDs) == 0 {
		return errors.New("COINGECKO_IDS must name at least one asset")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// splitIDs splits a comma-joined id list, dropping empty entries.
func splitIDs(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}
