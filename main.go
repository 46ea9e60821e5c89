package main

import (
	"context"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"media-catalog/internal/cache"
	"media-catalog/internal/config"
	"media-catalog/internal/dispatch"
	"media-catalog/internal/extract"
	"media-catalog/internal/fingerprint"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
	"media-catalog/internal/migrate"
)

// Exit codes: 0 clean run, 1 run completed with skipped files, 2 fatal.
const (
	exitSuccess = 0
	exitPartial = 1
	exitFatal   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	startTime := time.Now()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("Configuration error: %v", err)
		return exitFatal
	}

	if err := os.MkdirAll(cfg.DatabaseDir, 0o755); err != nil {
		logging.Error("Failed to create database directory: %v", err)
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrateStore(ctx, cfg.DatabasePath); err != nil {
		logging.Error("Migration check failed: %v", err)
		return exitFatal
	}

	store, err := cache.Open(ctx, cfg.DatabasePath, cache.Options{SizeLimitBytes: cfg.SizeLimitBytes})
	if err != nil {
		logging.Error("Failed to open cache store: %v", err)
		return exitFatal
	}
	defer store.Close()

	if cfg.MetricsEnabled {
		srv := metrics.Serve(":" + cfg.MetricsPort)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	files, err := scanMediaDir(cfg.MediaDir, cfg.SkipHidden)
	if err != nil {
		logging.Error("Failed to scan %s: %v", cfg.MediaDir, err)
		return exitFatal
	}
	logging.Info("Found %d media files under %s", len(files), cfg.MediaDir)

	prior, err := store.Fingerprints(ctx)
	if err != nil {
		logging.Error("Failed to load prior fingerprints: %v", err)
		return exitFatal
	}
	tracker := fingerprint.NewTracker(prior, cfg.HashCheck)

	d := dispatch.New(store, tracker, buildExtractor(cfg), dispatch.Config{
		Workers:     cfg.Workers,
		BatchSize:   cfg.BatchSize,
		FileTimeout: cfg.ExtractTimeout,
		HashCheck:   cfg.HashCheck,
	})

	summary, records, err := d.Run(ctx, files)
	if err != nil {
		logging.Error("Run aborted: %v", err)
		return exitFatal
	}

	runID := uuid.NewString()
	if err := store.RecordChanges(ctx, runID, records); err != nil {
		logging.Warn("Failed to record change log for run %s: %v", runID, err)
	}

	pruneStore(ctx, store, cfg)
	logStats(ctx, store)

	logging.Info("Run %s finished in %v: %s", runID, time.Since(startTime).Round(time.Millisecond), summary)

	switch summary.Result() {
	case dispatch.ResultSuccess:
		return exitSuccess
	case dispatch.ResultPartialFailure:
		return exitPartial
	default:
		return exitFatal
	}
}

// migrateStore brings an older store up to the current schema before it
// is opened. A store that is already current is a no-op.
func migrateStore(ctx context.Context, dbPath string) error {
	mgr := migrate.NewManager(dbPath, nil)
	plan, err := mgr.Plan(ctx)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		return nil
	}

	logging.Info("Store schema is behind, applying %d migration steps", len(plan))
	if _, err := mgr.Apply(ctx); err != nil {
		return err
	}
	return nil
}

// scanMediaDir walks the tree and collects extractable files in walk
// order. Unreadable paths are logged and skipped, not fatal.
func scanMediaDir(mediaDir string, skipHidden bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil
		}
		if skipHidden && strings.HasPrefix(d.Name(), ".") && path != mediaDir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if mediatypes.IsExtractable(mediatypes.TypeOf(path)) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// buildExtractor wires the type router: built-in image extraction, plus
// the configured external tool for videos when one is available.
func buildExtractor(cfg *config.Config) extract.Extractor {
	var video extract.Extractor
	if cfg.ExtractCommand != "" {
		cmd, err := extract.NewCommandExtractor(cfg.ExtractCommand, cfg.ExtractTimeout)
		if err != nil {
			logging.Warn("Video extraction disabled: %v", err)
		} else {
			video = cmd
		}
	}
	return extract.NewRouter(extract.NewImageExtractor(), video)
}

// pruneStore applies the configured retention policies after a run.
func pruneStore(ctx context.Context, store *cache.Store, cfg *config.Config) {
	if cfg.MaxAge > 0 {
		n, err := store.Prune(ctx, cache.PrunePolicy{Kind: cache.PruneMaxAge, MaxAge: cfg.MaxAge})
		if err != nil {
			logging.Warn("Age prune failed: %v", err)
		} else if n > 0 {
			logging.Info("Pruned %d entries older than %s", n, cfg.MaxAge)
		}
	}
	if cfg.SizeLimitBytes > 0 {
		n, err := store.Prune(ctx, cache.PrunePolicy{Kind: cache.PruneMaxBytes, MaxBytes: cfg.SizeLimitBytes})
		if err != nil {
			logging.Warn("Size prune failed: %v", err)
		} else if n > 0 {
			logging.Info("Pruned %d entries to fit %d bytes", n, cfg.SizeLimitBytes)
		}
	}
}

func logStats(ctx context.Context, store *cache.Store) {
	entries, err := store.Len(ctx)
	if err != nil {
		return
	}
	size, err := store.SizeBytes(ctx)
	if err != nil {
		return
	}
	metrics.StoreEntries.Set(float64(entries))
	logging.Info("Cache store: %d entries, %d bytes of metadata", entries, size)
}
