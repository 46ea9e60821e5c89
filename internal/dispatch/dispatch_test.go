package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"media-catalog/internal/cache"
	"media-catalog/internal/extract"
	"media-catalog/internal/fingerprint"
	"media-catalog/internal/logging"
)

func TestMain(m *testing.M) {
	logging.SetLevel(logging.LevelError)
	os.Exit(m.Run())
}

// fakeExtractor counts calls and fails on demand.
type fakeExtractor struct {
	mu       sync.Mutex
	calls    map[string]int
	fail     map[string]error
	failOnce map[string]bool
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		calls:    make(map[string]int),
		fail:     make(map[string]error),
		failOnce: make(map[string]bool),
	}
}

func (f *fakeExtractor) Extract(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++
	if f.failOnce[path] && f.calls[path] == 1 {
		return nil, errors.New("transient decode failure")
	}
	if err := f.fail[path]; err != nil {
		return nil, err
	}
	return []byte("meta:" + filepath.Base(path)), nil
}

func (f *fakeExtractor) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func setupTestStore(t *testing.T) *cache.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping store test in short mode")
	}
	s, err := cache.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"), cache.Options{})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeMedia(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func mediaSet(t *testing.T, n int) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	files := make([]string, 0, n)
	for i := 0; i < n; i++ {
		files = append(files, writeMedia(t, dir, fmt.Sprintf("img-%02d.jpg", i), fmt.Sprintf("pixels-%d", i)))
	}
	return dir, files
}

func TestRunProcessesThenHitsCache(t *testing.T) {
	s := setupTestStore(t)
	_, files := mediaSet(t, 5)
	fx := newFakeExtractor()
	tr := fingerprint.NewTracker(nil, false)
	d := New(s, tr, fx, Config{Workers: 4, BatchSize: 2})

	summary, records, err := d.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Processed != 5 || summary.CacheHits != 0 || summary.Errors != 0 {
		t.Errorf("run 1 summary = %s", summary)
	}
	if summary.Result() != ResultSuccess {
		t.Errorf("run 1 result = %s, want success", summary.Result())
	}
	if len(records) != 5 {
		t.Errorf("run 1 records = %d, want 5", len(records))
	}
	for _, rec := range records {
		if rec.Change != fingerprint.ChangeNew {
			t.Errorf("%s = %v, want new", rec.Path, rec.Change)
		}
	}

	// Second run over an unchanged tree: everything served from cache.
	summary, records, err = d.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run 2 failed: %v", err)
	}
	if summary.CacheHits != 5 || summary.Processed != 5 {
		t.Errorf("run 2 summary = %s, want 5 cache hits", summary)
	}
	for _, rec := range records {
		if rec.Change != fingerprint.ChangeUnchanged {
			t.Errorf("%s = %v, want unchanged", rec.Path, rec.Change)
		}
	}
	for _, path := range files {
		if n := fx.callCount(path); n != 1 {
			t.Errorf("%s extracted %d times across both runs, want 1", path, n)
		}
	}
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	_, files := mediaSet(t, 9)

	type snapshot map[string]string
	capture := func(workers int) snapshot {
		s := setupTestStore(t)
		d := New(s, fingerprint.NewTracker(nil, false), newFakeExtractor(),
			Config{Workers: workers, BatchSize: 4})
		if _, _, err := d.Run(context.Background(), files); err != nil {
			t.Fatalf("Run with %d workers failed: %v", workers, err)
		}
		out := make(snapshot)
		for _, path := range files {
			entry, err := s.Get(context.Background(), path)
			if err != nil {
				t.Fatalf("Get(%s) with %d workers failed: %v", path, workers, err)
			}
			out[path] = string(entry.Blob)
		}
		return out
	}

	baseline := capture(1)
	for _, workers := range []int{4, 0} {
		got := capture(workers)
		for path, blob := range baseline {
			if got[path] != blob {
				t.Errorf("workers=%d: %s blob = %q, want %q", workers, path, got[path], blob)
			}
		}
	}
}

func TestRunIsolatesExtractionFailure(t *testing.T) {
	s := setupTestStore(t)
	_, files := mediaSet(t, 4)
	fx := newFakeExtractor()
	fx.fail[files[1]] = errors.New("corrupt header")

	d := New(s, fingerprint.NewTracker(nil, false), fx, Config{Workers: 2, BatchSize: 10})
	summary, _, err := d.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Errors != 1 || summary.Skipped != 1 {
		t.Errorf("summary = %s, want 1 error and 1 skip", summary)
	}
	if summary.Result() != ResultPartialFailure {
		t.Errorf("result = %s, want partial_failure", summary.Result())
	}
	// Transient failures get exactly one retry.
	if n := fx.callCount(files[1]); n != 2 {
		t.Errorf("failing file extracted %d times, want 2", n)
	}
	// The other files made it into the cache.
	for _, path := range []string{files[0], files[2], files[3]} {
		if _, err := s.Get(context.Background(), path); err != nil {
			t.Errorf("Get(%s) = %v, want entry", path, err)
		}
	}
	if _, err := s.Get(context.Background(), files[1]); !errors.Is(err, cache.ErrMiss) {
		t.Error("failed file should not be cached")
	}
}

func TestRunRetriesTransientOnce(t *testing.T) {
	s := setupTestStore(t)
	_, files := mediaSet(t, 1)
	fx := newFakeExtractor()
	fx.failOnce[files[0]] = true

	d := New(s, fingerprint.NewTracker(nil, false), fx, Config{Workers: 1, BatchSize: 10})
	summary, _, err := d.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Errors != 0 || summary.Processed != 1 {
		t.Errorf("summary = %s, want clean run after retry", summary)
	}
	if n := fx.callCount(files[0]); n != 2 {
		t.Errorf("extract calls = %d, want 2", n)
	}
}

func TestRunUnsupportedIsNotRetried(t *testing.T) {
	s := setupTestStore(t)
	_, files := mediaSet(t, 1)
	fx := newFakeExtractor()
	fx.fail[files[0]] = extract.ErrUnsupported

	d := New(s, fingerprint.NewTracker(nil, false), fx, Config{Workers: 1, BatchSize: 10})
	summary, _, err := d.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Skipped != 1 || summary.Errors != 0 {
		t.Errorf("summary = %s, want 1 skip and no errors", summary)
	}
	if n := fx.callCount(files[0]); n != 1 {
		t.Errorf("unsupported file extracted %d times, want 1", n)
	}
}

func TestRunDetectsDeletion(t *testing.T) {
	s := setupTestStore(t)
	_, files := mediaSet(t, 2)
	fx := newFakeExtractor()
	tr := fingerprint.NewTracker(nil, false)
	d := New(s, tr, fx, Config{Workers: 2, BatchSize: 10})

	if _, _, err := d.Run(context.Background(), files); err != nil {
		t.Fatalf("Run 1 failed: %v", err)
	}

	// Second run never sees files[1].
	if err := os.Remove(files[1]); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	summary, records, err := d.Run(context.Background(), files[:1])
	if err != nil {
		t.Fatalf("Run 2 failed: %v", err)
	}

	if summary.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", summary.Deleted)
	}
	if _, err := s.Get(context.Background(), files[1]); !errors.Is(err, cache.ErrMiss) {
		t.Error("deleted file's entry should be invalidated")
	}
	var sawDeleted bool
	for _, rec := range records {
		if rec.Path == files[1] && rec.Change == fingerprint.ChangeDeleted {
			sawDeleted = true
		}
	}
	if !sawDeleted {
		t.Error("change records missing the deletion")
	}
}

func TestRunTouchDoesNotReextract(t *testing.T) {
	s := setupTestStore(t)
	dir := t.TempDir()
	path := writeMedia(t, dir, "a.jpg", "stable bytes")
	fx := newFakeExtractor()
	tr := fingerprint.NewTracker(nil, true)
	d := New(s, tr, fx, Config{Workers: 1, BatchSize: 10, HashCheck: true})

	if _, _, err := d.Run(context.Background(), []string{path}); err != nil {
		t.Fatalf("Run 1 failed: %v", err)
	}

	// Touch: bump mtime, keep bytes.
	future := time.Now().Add(5 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	summary, records, err := d.Run(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Run 2 failed: %v", err)
	}
	if summary.CacheHits != 1 {
		t.Errorf("touched file: summary = %s, want a cache hit", summary)
	}
	if n := fx.callCount(path); n != 1 {
		t.Errorf("touched file extracted %d times, want 1", n)
	}
	if len(records) != 1 || records[0].Change != fingerprint.ChangeUnchanged {
		t.Errorf("touch classified as %v, want unchanged", records[0].Change)
	}
}

func TestRunContentChangeReextracts(t *testing.T) {
	s := setupTestStore(t)
	dir := t.TempDir()
	path := writeMedia(t, dir, "a.jpg", "first bytes")
	fx := newFakeExtractor()
	tr := fingerprint.NewTracker(nil, true)
	d := New(s, tr, fx, Config{Workers: 1, BatchSize: 10, HashCheck: true})

	if _, _, err := d.Run(context.Background(), []string{path}); err != nil {
		t.Fatalf("Run 1 failed: %v", err)
	}

	writeMedia(t, dir, "a.jpg", "second bytes!")
	future := time.Now().Add(5 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	summary, records, err := d.Run(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Run 2 failed: %v", err)
	}
	if summary.CacheHits != 0 {
		t.Errorf("rewritten file should not hit the cache: %s", summary)
	}
	if n := fx.callCount(path); n != 2 {
		t.Errorf("rewritten file extracted %d times, want 2", n)
	}
	if len(records) != 1 || records[0].Change != fingerprint.ChangeContentChanged {
		t.Errorf("rewrite classified as %v, want content_changed", records[0].Change)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	s := setupTestStore(t)
	_, files := mediaSet(t, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(s, fingerprint.NewTracker(nil, false), newFakeExtractor(), Config{Workers: 2, BatchSize: 1})
	summary, _, err := d.Run(ctx, files)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if summary.Result() != ResultFatal {
		t.Errorf("result = %s, want fatal", summary.Result())
	}
}

// cancellingExtractor cancels the run on its first extraction, then
// behaves like the wrapped extractor.
type cancellingExtractor struct {
	cancel context.CancelFunc
	inner  *fakeExtractor
}

func (c *cancellingExtractor) Extract(ctx context.Context, path string) ([]byte, error) {
	c.cancel()
	return c.inner.Extract(ctx, path)
}

func TestRunCancelledMidRunFinishesInFlightFile(t *testing.T) {
	s := setupTestStore(t)
	_, files := mediaSet(t, 2)
	fx := newFakeExtractor()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The run is cancelled while the first file is being extracted.
	// That extraction must still complete and land in the cache; the
	// second file must never start.
	d := New(s, fingerprint.NewTracker(nil, false), &cancellingExtractor{cancel: cancel, inner: fx},
		Config{Workers: 1, BatchSize: 1})
	_, _, err := d.Run(ctx, files)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	if _, err := s.Get(context.Background(), files[0]); err != nil {
		t.Errorf("in-flight file should be cached despite cancellation: %v", err)
	}
	if n := fx.callCount(files[1]); n != 0 {
		t.Errorf("second file extracted %d times after cancellation, want 0", n)
	}
}

func TestSummaryResult(t *testing.T) {
	tests := []struct {
		name    string
		summary Summary
		want    Result
	}{
		{"clean", Summary{Processed: 10}, ResultSuccess},
		{"skips", Summary{Processed: 10, Skipped: 1}, ResultPartialFailure},
		{"errors", Summary{Processed: 10, Errors: 2}, ResultPartialFailure},
		{"fatal", Summary{Fatal: true}, ResultFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.summary.Result(); got != tt.want {
				t.Errorf("Result() = %s, want %s", got, tt.want)
			}
		})
	}
}
