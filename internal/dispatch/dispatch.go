package dispatch

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"media-catalog/internal/cache"
	"media-catalog/internal/extract"
	"media-catalog/internal/fingerprint"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
	"media-catalog/internal/workers"
)

// Config bounds a run.
type Config struct {
	// Workers is the parallelism cap per batch (0 = auto from CPU count).
	Workers int
	// BatchSize is the number of files handed to the pool at once.
	BatchSize int
	// FileTimeout bounds a single extraction (0 = no limit).
	FileTimeout time.Duration
	// HashCheck records content hashes alongside cache writes so later
	// runs can settle cheap-fingerprint mismatches by content.
	HashCheck bool
}

// Dispatcher runs the extract-or-reuse pipeline over a scanned file list.
type Dispatcher struct {
	store     *cache.Store
	tracker   *fingerprint.Tracker
	extractor extract.Extractor
	config    Config

	// processed counts files whose outcome is decided (hit, extracted
	// or skipped). It only increases during a run, so it serves as the
	// progress signal.
	processed atomic.Int64
	cacheHits atomic.Int64
	skipped   atomic.Int64
	errCount  atomic.Int64

	mu      sync.Mutex
	next    map[string]fingerprint.Fingerprint
	records []fingerprint.ChangeRecord
}

// New creates a dispatcher over the given store, tracker and extractor.
func New(store *cache.Store, tracker *fingerprint.Tracker, extractor extract.Extractor, config Config) *Dispatcher {
	if config.Workers <= 0 {
		config.Workers = workers.ForMixed(0)
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	return &Dispatcher{
		store:     store,
		tracker:   tracker,
		extractor: extractor,
		config:    config,
	}
}

// Progress returns the number of files decided so far. Monotonic
// within a run.
func (d *Dispatcher) Progress() int64 {
	return d.processed.Load()
}

// Run processes every file, detects deletions against the tracker's
// snapshot and publishes the new snapshot. It returns the run summary
// and the per-path change records for the change log. A context
// cancellation finishes in-flight files, skips deletion handling and
// leaves the prior snapshot in place.
func (d *Dispatcher) Run(ctx context.Context, files []string) (*Summary, []fingerprint.ChangeRecord, error) {
	start := time.Now()
	d.processed.Store(0)
	d.cacheHits.Store(0)
	d.skipped.Store(0)
	d.errCount.Store(0)
	d.mu.Lock()
	d.next = make(map[string]fingerprint.Fingerprint, len(files))
	d.records = nil
	d.mu.Unlock()

	metrics.DispatchWorkers.Set(float64(d.config.Workers))
	logging.Info("Dispatching %d files across %d workers (batch size %d)",
		len(files), d.config.Workers, d.config.BatchSize)

	for offset := 0; offset < len(files); offset += d.config.BatchSize {
		if err := ctx.Err(); err != nil {
			logging.Warn("Run cancelled after %d of %d files", d.processed.Load(), len(files))
			summary := d.summarize(start, 0, true)
			metrics.RunsTotal.WithLabelValues(string(ResultFatal)).Inc()
			return summary, nil, err
		}

		end := offset + d.config.BatchSize
		if end > len(files) {
			end = len(files)
		}
		d.runBatch(ctx, files[offset:end])
	}

	deleted, err := d.handleDeletions(ctx, files)
	if err != nil {
		summary := d.summarize(start, deleted, true)
		metrics.RunsTotal.WithLabelValues(string(ResultFatal)).Inc()
		return summary, nil, err
	}

	d.mu.Lock()
	next := d.next
	records := d.records
	d.mu.Unlock()
	d.tracker.Publish(next)

	summary := d.summarize(start, deleted, false)
	metrics.RunsTotal.WithLabelValues(string(summary.Result())).Inc()
	logging.Info("Run complete: %s", summary)
	return summary, records, nil
}

func (d *Dispatcher) summarize(start time.Time, deleted int64, fatal bool) *Summary {
	return &Summary{
		Processed: d.processed.Load(),
		CacheHits: d.cacheHits.Load(),
		Skipped:   d.skipped.Load(),
		Errors:    d.errCount.Load(),
		Deleted:   deleted,
		Duration:  time.Since(start),
		Fatal:     fatal,
	}
}

// runBatch fans one batch across the pool. Worker errors never
// propagate; every file's failure is absorbed into the counters.
func (d *Dispatcher) runBatch(ctx context.Context, batch []string) {
	var g errgroup.Group
	g.SetLimit(d.config.Workers)

	// Cancellation stops new files from starting but lets files already
	// in flight run to completion under their own timeout, so their
	// results still land in the cache.
	fileCtx := context.WithoutCancel(ctx)

	for _, path := range batch {
		path := path
		g.Go(func() error {
			if ctx.Err() != nil {
				d.skip(path, "cancelled")
				return nil
			}
			d.processFile(fileCtx, path)
			return nil
		})
	}
	_ = g.Wait()
}

// processFile decides one file: cache hit, extract, or skip.
func (d *Dispatcher) processFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		logging.Warn("Cannot stat %s: %v", path, err)
		d.skip(path, "stat")
		d.errCount.Add(1)
		return
	}

	rec := d.tracker.Classify(fingerprint.FromFileInfo(path, info))
	current := *rec.Current
	d.record(rec)

	_, err = d.store.Lookup(ctx, current)
	if err == nil {
		d.cacheHits.Add(1)
		d.processed.Add(1)
		d.observe(path, current)
		return
	}
	if !errors.Is(err, cache.ErrMiss) {
		logging.Warn("Cache lookup failed for %s: %v", path, err)
		d.skip(path, "store")
		d.errCount.Add(1)
		return
	}

	blob, err := d.extract(ctx, path)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupported) {
			d.skip(path, "unsupported")
			return
		}
		logging.Warn("Extraction failed for %s: %v", path, err)
		d.skip(path, "extract")
		d.errCount.Add(1)
		return
	}

	// Hash at extraction time: the file is being read anyway, and the
	// stored hash lets later runs settle touches without re-extracting.
	if d.config.HashCheck && current.Hash == "" {
		if hashed, herr := current.WithHash(); herr == nil {
			current = hashed
		} else {
			logging.Debug("Hash computation failed for %s: %v", path, herr)
		}
	}

	if err := d.store.Put(ctx, current, mediatypes.TypeOf(path), blob); err != nil {
		logging.Warn("Cache write failed for %s: %v", path, err)
		d.skip(path, "store")
		d.errCount.Add(1)
		return
	}

	d.processed.Add(1)
	metrics.FilesProcessedTotal.Inc()
	d.observe(path, current)
}

// extract runs the extractor with the per-file timeout, retrying a
// transient failure once. ErrUnsupported is permanent and returned
// as-is.
func (d *Dispatcher) extract(ctx context.Context, path string) ([]byte, error) {
	attempt := func() ([]byte, error) {
		runCtx := ctx
		if d.config.FileTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, d.config.FileTimeout)
			defer cancel()
		}
		return d.extractor.Extract(runCtx, path)
	}

	blob, err := attempt()
	if err == nil || errors.Is(err, extract.ErrUnsupported) || ctx.Err() != nil {
		return blob, err
	}

	logging.Debug("Retrying extraction for %s after: %v", path, err)
	return attempt()
}

// handleDeletions invalidates entries for snapshot paths missing from
// the scan.
func (d *Dispatcher) handleDeletions(ctx context.Context, files []string) (int64, error) {
	seen := make(map[string]bool, len(files))
	for _, path := range files {
		seen[path] = true
	}

	var deleted int64
	for _, rec := range d.tracker.Deleted(seen) {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := d.store.Invalidate(ctx, rec.Path); err != nil {
			return deleted, err
		}
		deleted++
		d.record(rec)
		logging.Debug("Removed cache entry for deleted file %s", rec.Path)
	}
	return deleted, nil
}

func (d *Dispatcher) skip(path string, reason string) {
	d.skipped.Add(1)
	d.processed.Add(1)
	metrics.FilesSkippedTotal.WithLabelValues(reason).Inc()
	logging.Debug("Skipped %s (%s)", path, reason)
}

func (d *Dispatcher) record(rec fingerprint.ChangeRecord) {
	d.mu.Lock()
	d.records = append(d.records, rec)
	d.mu.Unlock()
}

func (d *Dispatcher) observe(path string, fp fingerprint.Fingerprint) {
	d.mu.Lock()
	d.next[path] = fp
	d.mu.Unlock()
}
