package fingerprint

import (
	"sync"
	"time"

	"media-catalog/internal/logging"
)

// ChangeType classifies a path's status relative to the previous run.
type ChangeType string

const (
	// ChangeNew marks a path absent from the prior snapshot.
	ChangeNew ChangeType = "new"
	// ChangeDeleted marks a path present previously but absent now.
	ChangeDeleted ChangeType = "deleted"
	// ChangeUnchanged marks a path whose fingerprint matches the prior run.
	ChangeUnchanged ChangeType = "unchanged"
	// ChangeModified marks a cheap-fingerprint mismatch when hash
	// checking is disabled. May over-trigger on pure touches.
	ChangeModified ChangeType = "modified"
	// ChangeContentChanged marks a verified content difference.
	ChangeContentChanged ChangeType = "content_changed"
)

// ChangeRecord is the per-run classification of one path. Records are
// built once per run, consumed to plan the work, and discarded; only
// the change log rows persist.
type ChangeRecord struct {
	Path      string
	Change    ChangeType
	Prior     *Fingerprint
	Current   *Fingerprint
	Timestamp time.Time
}

// Tracker classifies scanned paths against the previous run's snapshot.
// The snapshot is read-only during a run; Publish swaps it atomically at
// run completion so concurrent readers never observe a partial update.
type Tracker struct {
	mu        sync.RWMutex
	snapshot  map[string]Fingerprint
	hashCheck bool
}

// NewTracker creates a tracker seeded with the prior run's fingerprints
// (typically loaded from the cache store's file_info rows).
func NewTracker(prior map[string]Fingerprint, hashCheck bool) *Tracker {
	if prior == nil {
		prior = make(map[string]Fingerprint)
	}
	return &Tracker{snapshot: prior, hashCheck: hashCheck}
}

// Prior returns the prior fingerprint for a path, if any.
func (t *Tracker) Prior(path string) (Fingerprint, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fp, ok := t.snapshot[path]
	return fp, ok
}

// Classify determines the change status of one scanned path. The
// cheap (size, mtime) comparison decides first and never reads the
// file; only a cheap mismatch with hash checking enabled hashes the
// current content and compares it against the stored hash. Identical
// bytes reclassify the path as Unchanged (a touch), different bytes
// as ContentChanged.
func (t *Tracker) Classify(current Fingerprint) ChangeRecord {
	now := time.Now()

	prior, ok := t.Prior(current.Path)
	if !ok {
		return ChangeRecord{Path: current.Path, Change: ChangeNew, Current: &current, Timestamp: now}
	}

	rec := ChangeRecord{Path: current.Path, Prior: &prior, Timestamp: now}

	if current.CheapEqual(prior) {
		// Carry the stored hash forward so the snapshot keeps it
		// without re-reading the file.
		current.Hash = prior.Hash
		rec.Change = ChangeUnchanged
		rec.Current = &current
		return rec
	}

	if !t.hashCheck || prior.Hash == "" {
		rec.Change = ChangeModified
		rec.Current = &current
		return rec
	}

	hashed, err := current.WithHash()
	if err != nil {
		// Unreadable for hashing; let extraction surface the real error.
		logging.Debug("Hash check failed for %s: %v", current.Path, err)
		rec.Change = ChangeModified
		rec.Current = &current
		return rec
	}
	rec.Current = &hashed

	if hashed.Hash == prior.Hash {
		rec.Change = ChangeUnchanged
	} else {
		rec.Change = ChangeContentChanged
	}
	return rec
}

// Deleted returns change records for every snapshot path missing from
// the current scan.
func (t *Tracker) Deleted(seen map[string]bool) []ChangeRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	var deleted []ChangeRecord
	for path, prior := range t.snapshot {
		if seen[path] {
			continue
		}
		p := prior
		deleted = append(deleted, ChangeRecord{
			Path:      path,
			Change:    ChangeDeleted,
			Prior:     &p,
			Timestamp: now,
		})
	}
	return deleted
}

// Publish atomically replaces the snapshot with the fingerprints
// observed in the completed run.
func (t *Tracker) Publish(next map[string]Fingerprint) {
	if next == nil {
		next = make(map[string]Fingerprint)
	}
	t.mu.Lock()
	t.snapshot = next
	t.mu.Unlock()
}

// Len returns the number of paths in the snapshot.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.snapshot)
}
