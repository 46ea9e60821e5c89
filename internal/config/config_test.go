package config

import (
	"os"
	"testing"
	"time"

	"media-catalog/internal/logging"
)

func TestMain(m *testing.M) {
	logging.SetLevel(logging.LevelError)
	os.Exit(m.Run())
}

// clearEnv unsets every variable Load reads, restoring on cleanup.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MEDIA_DIR", "DATABASE_DIR", "EXTRACT_WORKERS", "BATCH_SIZE",
		"HASH_CHECK", "EXTRACT_TIMEOUT", "EXTRACT_COMMAND",
		"CACHE_SIZE_LIMIT", "CACHE_MAX_AGE", "METRICS_ENABLED",
		"METRICS_PORT", "SKIP_HIDDEN",
	} {
		if v, ok := os.LookupEnv(key); ok {
			t.Setenv(key, v)
		}
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", cfg.BatchSize, DefaultBatchSize)
	}
	if cfg.Workers != 0 {
		t.Errorf("Workers = %d, want 0 (auto)", cfg.Workers)
	}
	if !cfg.HashCheck {
		t.Error("HashCheck should default to true")
	}
	if cfg.ExtractTimeout != DefaultExtractTimeout {
		t.Errorf("ExtractTimeout = %s, want %s", cfg.ExtractTimeout, DefaultExtractTimeout)
	}
	if cfg.MetricsEnabled {
		t.Error("MetricsEnabled should default to false")
	}
	if cfg.DatabasePath == "" {
		t.Error("DatabasePath should be derived")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEDIA_DIR", t.TempDir())
	t.Setenv("DATABASE_DIR", t.TempDir())
	t.Setenv("EXTRACT_WORKERS", "4")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("HASH_CHECK", "false")
	t.Setenv("EXTRACT_TIMEOUT", "5s")
	t.Setenv("CACHE_SIZE_LIMIT", "1048576")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
	}
	if cfg.HashCheck {
		t.Error("HashCheck should be false")
	}
	if cfg.ExtractTimeout != 5*time.Second {
		t.Errorf("ExtractTimeout = %s, want 5s", cfg.ExtractTimeout)
	}
	if cfg.SizeLimitBytes != 1048576 {
		t.Errorf("SizeLimitBytes = %d, want 1048576", cfg.SizeLimitBytes)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("BATCH_SIZE", "notanumber")
	t.Setenv("HASH_CHECK", "maybe")
	t.Setenv("EXTRACT_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want default %d", cfg.BatchSize, DefaultBatchSize)
	}
	if !cfg.HashCheck {
		t.Error("HashCheck should fall back to true")
	}
	if cfg.ExtractTimeout != DefaultExtractTimeout {
		t.Errorf("ExtractTimeout = %s, want default", cfg.ExtractTimeout)
	}
}

func TestLoadRejectsBadBatchSize(t *testing.T) {
	clearEnv(t)
	t.Setenv("BATCH_SIZE", "-1")

	if _, err := Load(); err == nil {
		t.Error("Load should reject a negative batch size")
	}
}
