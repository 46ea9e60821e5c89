package cache

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"media-catalog/internal/logging"
)

// Backup writes a byte-identical snapshot of the store to dest. It
// holds the store-wide barrier so in-flight writes drain first, then
// checkpoints the WAL so the main file contains every committed entry
// before it is copied.
func (s *Store) Backup(ctx context.Context, dest string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("backup", start, err) }()

	s.barrier.Lock()
	defer s.barrier.Unlock()

	if _, err = s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint before backup: %w", err)
	}

	if err = copyFile(s.dbPath, dest); err != nil {
		return fmt.Errorf("failed to write backup to %s: %w", dest, err)
	}

	logging.Info("Backup written to %s", dest)
	return nil
}

// Restore replaces the live store with the backup at src. The artifact
// is validated before the live store is touched, so restoring a bad
// artifact fails that operation only: the live store stays in place,
// open and usable.
func (s *Store) Restore(ctx context.Context, src string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("restore", start, err) }()

	if err = validateArtifact(ctx, src); err != nil {
		return err
	}

	s.barrier.Lock()
	defer s.barrier.Unlock()

	// Stage the replacement next to the live file so the final rename
	// is atomic on the same filesystem.
	staged := s.dbPath + ".restore"
	if err = copyFile(src, staged); err != nil {
		return fmt.Errorf("failed to stage restore: %w", err)
	}

	if err = s.db.Close(); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("failed to close store for restore: %w", err)
	}

	// Stale WAL/SHM files would shadow the restored contents.
	_ = os.Remove(s.dbPath + "-wal")
	_ = os.Remove(s.dbPath + "-shm")

	if err = os.Rename(staged, s.dbPath); err != nil {
		_ = os.Remove(staged)
		// The previous live file is still in place; reopen it so the
		// store stays usable.
		if db, openErr := openDatabase(s.dbPath); openErr == nil {
			s.db = db
		}
		return fmt.Errorf("failed to swap in restored store: %w", err)
	}

	db, err := openDatabase(s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to reopen restored store: %w", err)
	}
	s.db = db

	logging.Info("Store restored from %s", src)
	return nil
}

// validateArtifact checks that src is a readable store carrying a
// usable schema version, without touching the live database.
func validateArtifact(ctx context.Context, src string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("backup artifact %s is not readable: %w", src, err)
	}

	db, err := sql.Open("sqlite3", src+"?_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("backup artifact %s is not a valid store: %w", src, err)
	}
	defer func() { _ = db.Close() }()

	var version string
	err = db.QueryRowContext(ctx,
		"SELECT value FROM store_meta WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return fmt.Errorf("backup artifact %s has no schema version", src)
	}
	if err != nil {
		return fmt.Errorf("backup artifact %s is not a valid store: %w", src, err)
	}
	if version == "" {
		return fmt.Errorf("backup artifact %s has no schema version", src)
	}
	return CheckVersion(version)
}

// copyFile copies src to dst, fsyncing the result.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
