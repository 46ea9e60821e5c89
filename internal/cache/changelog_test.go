package cache

import (
	"context"
	"testing"
	"time"

	"media-catalog/internal/fingerprint"
)

func TestRecordAndReadChanges(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	now := time.Now()
	records := []fingerprint.ChangeRecord{
		{Path: "a.jpg", Change: fingerprint.ChangeNew, Timestamp: now},
		{Path: "b.mov", Change: fingerprint.ChangeContentChanged, Timestamp: now},
		{Path: "c.png", Change: fingerprint.ChangeDeleted, Timestamp: now},
	}

	if err := s.RecordChanges(ctx, "run-1", records); err != nil {
		t.Fatalf("RecordChanges failed: %v", err)
	}
	// A second run's records stay separate.
	if err := s.RecordChanges(ctx, "run-2", records[:1]); err != nil {
		t.Fatalf("RecordChanges failed: %v", err)
	}

	rows, err := s.Changes(ctx, "run-1")
	if err != nil {
		t.Fatalf("Changes failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows for run-1, want 3", len(rows))
	}
	// Ordered by path.
	wantPaths := []string{"a.jpg", "b.mov", "c.png"}
	for i, row := range rows {
		if row.Path != wantPaths[i] {
			t.Errorf("row %d path = %s, want %s", i, row.Path, wantPaths[i])
		}
	}
	if rows[1].ChangeType != fingerprint.ChangeContentChanged {
		t.Errorf("b.mov change = %v, want content_changed", rows[1].ChangeType)
	}

	rows2, err := s.Changes(ctx, "run-2")
	if err != nil {
		t.Fatalf("Changes failed: %v", err)
	}
	if len(rows2) != 1 {
		t.Errorf("got %d rows for run-2, want 1", len(rows2))
	}
}

func TestRecordChangesEmpty(t *testing.T) {
	s := setupTestStore(t)
	if err := s.RecordChanges(context.Background(), "run-x", nil); err != nil {
		t.Errorf("RecordChanges with no records failed: %v", err)
	}
}

func TestPruneChangeLog(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	old := []fingerprint.ChangeRecord{
		{Path: "a.jpg", Change: fingerprint.ChangeNew, Timestamp: time.Now().Add(-48 * time.Hour)},
	}
	fresh := []fingerprint.ChangeRecord{
		{Path: "b.jpg", Change: fingerprint.ChangeNew, Timestamp: time.Now()},
	}
	if err := s.RecordChanges(ctx, "old-run", old); err != nil {
		t.Fatalf("RecordChanges failed: %v", err)
	}
	if err := s.RecordChanges(ctx, "fresh-run", fresh); err != nil {
		t.Fatalf("RecordChanges failed: %v", err)
	}

	dropped, err := s.PruneChangeLog(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneChangeLog failed: %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}

	rows, err := s.Changes(ctx, "fresh-run")
	if err != nil || len(rows) != 1 {
		t.Errorf("fresh run rows = %d (err %v), want 1", len(rows), err)
	}
}
