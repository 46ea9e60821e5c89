package cache

import (
	"context"
	"fmt"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// PruneKind selects the eviction policy.
type PruneKind string

const (
	// PruneMaxBytes evicts oldest-written entries until the accounted
	// size fits under MaxBytes.
	PruneMaxBytes PruneKind = "max_bytes"
	// PruneMaxAge evicts entries not written or validated within MaxAge.
	PruneMaxAge PruneKind = "max_age"
	// PruneSmart is strict LRU over updated_at: the least recently
	// written or validated entries are evicted first until the size
	// constraint holds, with path ordering as the deterministic
	// tie-break.
	PruneSmart PruneKind = "smart"
)

// PrunePolicy describes one prune invocation.
type PrunePolicy struct {
	Kind     PruneKind
	MaxBytes int64
	MaxAge   time.Duration
}

// Prune evicts entries per the policy, never removing more than needed
// to satisfy the constraint. It holds the store-wide barrier, so it
// waits for in-flight writes to drain and blocks new ones.
func (s *Store) Prune(ctx context.Context, policy PrunePolicy) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("prune", start, err) }()

	s.barrier.Lock()
	defer s.barrier.Unlock()

	var evicted int
	switch policy.Kind {
	case PruneMaxBytes, PruneSmart:
		evicted, err = s.pruneToSize(ctx, policy)
	case PruneMaxAge:
		evicted, err = s.pruneByAge(ctx, policy)
	default:
		err = fmt.Errorf("unknown prune policy %q", policy.Kind)
	}
	if err != nil {
		return 0, err
	}

	if evicted > 0 {
		metrics.CacheEvictionsTotal.WithLabelValues(string(policy.Kind)).Add(float64(evicted))
		logging.Info("Pruned %d entries (%s)", evicted, policy.Kind)
	}
	return evicted, nil
}

// pruneToSize walks entries in LRU order and deletes just enough to
// bring the accounted size under MaxBytes.
func (s *Store) pruneToSize(ctx context.Context, policy PrunePolicy) (int, error) {
	if policy.MaxBytes <= 0 {
		return 0, fmt.Errorf("%s prune requires a positive MaxBytes", policy.Kind)
	}

	total, err := s.sizeBytes(ctx)
	if err != nil {
		return 0, err
	}
	if total <= policy.MaxBytes {
		return 0, nil
	}
	excess := total - policy.MaxBytes

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, LENGTH(metadata_blob)
		FROM metadata
		ORDER BY updated_at ASC, path ASC
	`)
	if err != nil {
		return 0, err
	}

	var victims []string
	var reclaimed int64
	for rows.Next() {
		var (
			path string
			size int64
		)
		if err := rows.Scan(&path, &size); err != nil {
			_ = rows.Close()
			return 0, err
		}
		victims = append(victims, path)
		reclaimed += size
		if reclaimed >= excess {
			break
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	return s.deleteEntries(ctx, victims)
}

// pruneByAge deletes entries older than the cutoff.
func (s *Store) pruneByAge(ctx context.Context, policy PrunePolicy) (int, error) {
	if policy.MaxAge <= 0 {
		return 0, fmt.Errorf("max_age prune requires a positive MaxAge")
	}
	cutoff := time.Now().Add(-policy.MaxAge).Unix()

	rows, err := s.db.QueryContext(ctx,
		"SELECT path FROM metadata WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, err
	}

	var victims []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			_ = rows.Close()
			return 0, err
		}
		victims = append(victims, path)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	return s.deleteEntries(ctx, victims)
}

// deleteEntries removes metadata and file_info rows for the given paths
// in one transaction.
func (s *Store) deleteEntries(ctx context.Context, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, path := range paths {
		if _, err := tx.ExecContext(ctx, "DELETE FROM metadata WHERE path = ?", path); err != nil {
			return 0, fmt.Errorf("failed to evict %s: %w", path, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM file_info WHERE path = ?", path); err != nil {
			return 0, fmt.Errorf("failed to evict file info for %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(paths), nil
}
