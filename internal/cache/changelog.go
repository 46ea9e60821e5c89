package cache

import (
	"context"
	"time"

	"media-catalog/internal/fingerprint"
)

// ChangeRow is one persisted change-log entry, consumed by external
// reporting.
type ChangeRow struct {
	RunID      string
	Path       string
	ChangeType fingerprint.ChangeType
	RecordedAt time.Time
}

// RecordChanges persists one change-log row per path for a run.
func (s *Store) RecordChanges(ctx context.Context, runID string, records []fingerprint.ChangeRecord) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_changes", start, err) }()

	if len(records) == 0 {
		return nil
	}

	s.barrier.RLock()
	defer s.barrier.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO change_log (run_id, path, change_type, recorded_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		if _, err = stmt.ExecContext(ctx, runID, rec.Path, string(rec.Change), rec.Timestamp.Unix()); err != nil {
			return err
		}
	}

	err = tx.Commit()
	return err
}

// Changes returns the change-log rows recorded for a run, ordered by path.
func (s *Store) Changes(ctx context.Context, runID string) ([]ChangeRow, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("changes", start, err) }()

	s.barrier.RLock()
	defer s.barrier.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, path, change_type, recorded_at
		FROM change_log
		WHERE run_id = ?
		ORDER BY path
	`, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ChangeRow
	for rows.Next() {
		var (
			row      ChangeRow
			change   string
			recorded int64
		)
		if err = rows.Scan(&row.RunID, &row.Path, &change, &recorded); err != nil {
			return nil, err
		}
		row.ChangeType = fingerprint.ChangeType(change)
		row.RecordedAt = time.Unix(recorded, 0)
		out = append(out, row)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PruneChangeLog drops change-log rows older than the cutoff. Reporting
// consumes rows per run; old runs only grow the file.
func (s *Store) PruneChangeLog(ctx context.Context, before time.Time) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("prune_change_log", start, err) }()

	s.barrier.RLock()
	defer s.barrier.RUnlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM change_log WHERE recorded_at < ?", before.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
