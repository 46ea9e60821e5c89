package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"media-catalog/internal/logging"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultBatchSize      = 500
	DefaultExtractTimeout = 30 * time.Second
	DefaultMetricsPort    = "9090"
	DefaultDatabaseFile   = "catalog.db"
)

// Config holds all catalog configuration. It is constructed once by Load
// and passed explicitly into each component.
type Config struct {
	// MediaDir is the root directory scanned for media files.
	MediaDir string
	// DatabaseDir holds the cache store and its backups.
	DatabaseDir string
	// DatabasePath is the full path to the store file (derived).
	DatabasePath string

	// Workers is the dispatcher worker count; 0 means auto-detect.
	Workers int
	// BatchSize is the number of files handed to the pool at a time.
	BatchSize int
	// HashCheck enables strong content hashing when size/mtime disagree,
	// so pure touches are not re-extracted.
	HashCheck bool
	// ExtractTimeout bounds a single file's extraction.
	ExtractTimeout time.Duration
	// ExtractCommand, when set, names an external extractor binary used
	// for video files (ffprobe/exiftool style).
	ExtractCommand string

	// SizeLimitBytes caps the store size; 0 disables pruning by size.
	SizeLimitBytes int64
	// MaxAge prunes entries not validated within this window; 0 disables.
	MaxAge time.Duration

	MetricsEnabled bool
	MetricsPort    string
	SkipHidden     bool
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cfg := &Config{
		MediaDir:       getEnv("MEDIA_DIR", "/media"),
		DatabaseDir:    getEnv("DATABASE_DIR", "/database"),
		Workers:        getEnvInt("EXTRACT_WORKERS", 0),
		BatchSize:      getEnvInt("BATCH_SIZE", DefaultBatchSize),
		HashCheck:      getEnvBool("HASH_CHECK", true),
		ExtractCommand: getEnv("EXTRACT_COMMAND", ""),
		SizeLimitBytes: getEnvInt64("CACHE_SIZE_LIMIT", 0),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		MetricsPort:    getEnv("METRICS_PORT", DefaultMetricsPort),
		SkipHidden:     getEnvBool("SKIP_HIDDEN", true),
	}

	cfg.ExtractTimeout = getEnvDuration("EXTRACT_TIMEOUT", DefaultExtractTimeout)
	cfg.MaxAge = getEnvDuration("CACHE_MAX_AGE", 0)

	var err error
	cfg.MediaDir, err = filepath.Abs(cfg.MediaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	cfg.DatabaseDir, err = filepath.Abs(cfg.DatabaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	cfg.DatabasePath = filepath.Join(cfg.DatabaseDir, DefaultDatabaseFile)

	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("BATCH_SIZE must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("EXTRACT_WORKERS must not be negative, got %d", cfg.Workers)
	}
	if cfg.ExtractTimeout <= 0 {
		return nil, fmt.Errorf("EXTRACT_TIMEOUT must be positive, got %s", cfg.ExtractTimeout)
	}

	logging.Info("  MEDIA_DIR:        %s", cfg.MediaDir)
	logging.Info("  DATABASE_DIR:     %s", cfg.DatabaseDir)
	logging.Info("  EXTRACT_WORKERS:  %s", describeWorkers(cfg.Workers))
	logging.Info("  BATCH_SIZE:       %d", cfg.BatchSize)
	logging.Info("  HASH_CHECK:       %v", cfg.HashCheck)
	logging.Info("  EXTRACT_TIMEOUT:  %s", cfg.ExtractTimeout)
	logging.Info("  CACHE_SIZE_LIMIT: %d", cfg.SizeLimitBytes)
	logging.Info("  CACHE_MAX_AGE:    %s", cfg.MaxAge)
	logging.Info("  METRICS_ENABLED:  %v", cfg.MetricsEnabled)
	logging.Info("  LOG_LEVEL:        %s", logging.GetLevel())

	return cfg, nil
}

func describeWorkers(n int) string {
	if n == 0 {
		return "auto"
	}
	return strconv.Itoa(n)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return parsed
}
