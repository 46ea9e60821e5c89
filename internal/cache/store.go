package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-catalog/internal/fingerprint"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
)

// CurrentSchemaVersion is the store schema this engine reads and writes.
const CurrentSchemaVersion = "2.0.0"

// Default timeout for store operations
const defaultTimeout = 5 * time.Second

var (
	// ErrMiss is returned when a lookup finds no valid entry.
	ErrMiss = errors.New("cache miss")
	// ErrSchemaTooNew is returned when the persisted schema version is
	// newer than this engine understands. All operations are refused to
	// prevent silent corruption by an older build.
	ErrSchemaTooNew = errors.New("store schema is newer than this engine supports")
	// ErrNeedsMigration is returned when the persisted schema version is
	// older than required and must be migrated before use.
	ErrNeedsMigration = errors.New("store schema requires migration")
)

// Entry is one cached metadata record.
type Entry struct {
	Path          string
	Size          int64
	ModTime       time.Time
	Hash          string
	FileType      mediatypes.FileType
	Blob          []byte
	SchemaVersion string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Fingerprint reconstructs the fingerprint stored with the entry.
func (e *Entry) Fingerprint() fingerprint.Fingerprint {
	fp := fingerprint.New(e.Path, e.Size, e.ModTime)
	fp.Hash = e.Hash
	return fp
}

// Options configures a store on first creation. The values are persisted
// into store_meta and reported by Meta afterwards.
type Options struct {
	SizeLimitBytes     int64
	CompressionEnabled bool
}

// Store is the SQLite-backed metadata cache.
type Store struct {
	db     *sql.DB
	dbPath string

	// barrier is the store-wide lock: ordinary reads and writes hold it
	// shared, backup/restore/prune/clear hold it exclusive so they never
	// observe a half-written entry.
	barrier sync.RWMutex
	paths   *pathLocks

	closeMu sync.Mutex
	closed  bool
}

const schemaV2 = `
CREATE TABLE IF NOT EXISTS metadata (
	path TEXT PRIMARY KEY,
	hash TEXT NOT NULL DEFAULT '',
	metadata_blob BLOB NOT NULL,
	schema_version TEXT NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE TABLE IF NOT EXISTS file_info (
	path TEXT PRIMARY KEY,
	size INTEGER NOT NULL DEFAULT 0,
	modified_time INTEGER NOT NULL DEFAULT 0,
	hash TEXT NOT NULL DEFAULT '',
	file_type TEXT NOT NULL DEFAULT 'other'
);

CREATE INDEX IF NOT EXISTS idx_metadata_updated ON metadata(updated_at);
CREATE INDEX IF NOT EXISTS idx_file_info_type ON file_info(file_type);

CREATE TABLE IF NOT EXISTS store_meta (
	key TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS change_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	path TEXT NOT NULL,
	change_type TEXT NOT NULL,
	recorded_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_change_log_run ON change_log(run_id);
`

// openDatabase opens the SQLite file with the catalog's standard
// connection settings. WAL mode allows concurrent readers during
// writes; busy_timeout prevents spurious "database is locked" errors.
func openDatabase(dbPath string) (*sql.DB, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// Open opens (or creates) the store at dbPath and verifies its schema
// version. A persisted version newer than CurrentSchemaVersion returns
// ErrSchemaTooNew; an older version returns ErrNeedsMigration and the
// caller must run the migration manager first.
func Open(ctx context.Context, dbPath string, opts Options) (*Store, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to store: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath, paths: newPathLocks()}

	if err := s.initialize(ctx, opts); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Info("Cache store open at %s (schema %s)", dbPath, CurrentSchemaVersion)
	return s, nil
}

// initialize creates the schema for fresh stores and enforces the
// version guard for existing ones.
func (s *Store) initialize(ctx context.Context, opts Options) error {
	persisted, err := s.persistedVersion(ctx)
	if err != nil {
		return err
	}

	if persisted == "" {
		// Fresh store: create the current schema in one transaction.
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, schemaV2); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		now := time.Now().UTC().Format(time.RFC3339)
		meta := [][2]string{
			{"schema_version", CurrentSchemaVersion},
			{"created_at", now},
			{"size_limit", fmt.Sprintf("%d", opts.SizeLimitBytes)},
			{"compression_enabled", fmt.Sprintf("%v", opts.CompressionEnabled)},
		}
		for _, kv := range meta {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO store_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING",
				kv[0], kv[1]); err != nil {
				return fmt.Errorf("failed to seed store_meta: %w", err)
			}
		}
		return tx.Commit()
	}

	return CheckVersion(persisted)
}

// persistedVersion reads schema_version from store_meta, returning ""
// when the store has no schema yet.
func (s *Store) persistedVersion(ctx context.Context) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='store_meta'").Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to inspect store: %w", err)
	}

	var version string
	err = s.db.QueryRowContext(ctx,
		"SELECT value FROM store_meta WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// CheckVersion compares a persisted schema version against the engine's.
func CheckVersion(persisted string) error {
	have, err := semver.NewVersion(persisted)
	if err != nil {
		return fmt.Errorf("invalid persisted schema version %q: %w", persisted, err)
	}
	want := semver.MustParse(CurrentSchemaVersion)

	switch {
	case have.GreaterThan(want):
		return fmt.Errorf("%w: store is %s, engine supports %s", ErrSchemaTooNew, persisted, CurrentSchemaVersion)
	case have.LessThan(want):
		return fmt.Errorf("%w: store is %s, engine requires %s", ErrNeedsMigration, persisted, CurrentSchemaVersion)
	default:
		return nil
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the on-disk location of the store file.
func (s *Store) Path() string {
	return s.dbPath
}

// recordQuery records store query metrics.
func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoreQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.StoreQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Put writes one entry atomically. The metadata and file_info rows for
// the path are replaced in a single transaction, so a crash mid-write
// never exposes a partial row and a failed write leaves the previous
// entry intact. Writes to different paths do not block each other;
// writes to the same path serialize, last writer wins.
func (s *Store) Put(ctx context.Context, fp fingerprint.Fingerprint, fileType mediatypes.FileType, blob []byte) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("put", start, err) }()

	s.barrier.RLock()
	defer s.barrier.RUnlock()
	s.paths.acquire(fp.Path)
	defer s.paths.release(fp.Path)

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin put: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO metadata (path, hash, metadata_blob, schema_version, updated_at)
		VALUES (?, ?, ?, ?, strftime('%s', 'now'))
		ON CONFLICT(path) DO UPDATE SET
			hash = excluded.hash,
			metadata_blob = excluded.metadata_blob,
			schema_version = excluded.schema_version,
			updated_at = strftime('%s', 'now')
	`, fp.Path, fp.Hash, blob, CurrentSchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to write metadata for %s: %w", fp.Path, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO file_info (path, size, modified_time, hash, file_type)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			modified_time = excluded.modified_time,
			hash = excluded.hash,
			file_type = excluded.file_type
	`, fp.Path, fp.Size, fp.ModTime.Unix(), fp.Hash, string(fileType))
	if err != nil {
		return fmt.Errorf("failed to write file info for %s: %w", fp.Path, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit put for %s: %w", fp.Path, err)
	}
	return nil
}

// Get returns the stored entry for a path, or ErrMiss. It performs no
// staleness check; see Lookup for the validity gate.
func (s *Store) Get(ctx context.Context, path string) (*Entry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get", start, err) }()

	s.barrier.RLock()
	defer s.barrier.RUnlock()

	return s.get(ctx, path)
}

func (s *Store) get(ctx context.Context, path string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var (
		e        Entry
		modTime  int64
		created  int64
		updated  int64
		fileType string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT m.path, m.hash, m.metadata_blob, m.schema_version, m.created_at, m.updated_at,
		       f.size, f.modified_time, f.file_type
		FROM metadata m
		JOIN file_info f ON f.path = m.path
		WHERE m.path = ?
	`, path).Scan(
		&e.Path, &e.Hash, &e.Blob, &e.SchemaVersion, &created, &updated,
		&e.Size, &modTime, &fileType,
	)
	if err == sql.ErrNoRows {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entry for %s: %w", path, err)
	}

	e.ModTime = time.Unix(modTime, 0)
	e.CreatedAt = time.Unix(created, 0)
	e.UpdatedAt = time.Unix(updated, 0)
	e.FileType = mediatypes.FileType(fileType)
	return &e, nil
}

// Lookup is the cache-reuse gate: it returns the entry only when the
// stored fingerprint equals the file's current fingerprint and the
// entry's schema version equals the engine's. Any mismatch deletes the
// stale row immediately and returns ErrMiss, so size accounting stays
// accurate. A valid hit refreshes updated_at for LRU pruning.
func (s *Store) Lookup(ctx context.Context, current fingerprint.Fingerprint) (*Entry, error) {
	s.barrier.RLock()
	defer s.barrier.RUnlock()

	entry, err := s.get(ctx, current.Path)
	if errors.Is(err, ErrMiss) {
		metrics.CacheMissesTotal.WithLabelValues("absent").Inc()
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	if entry.SchemaVersion != CurrentSchemaVersion {
		metrics.CacheMissesTotal.WithLabelValues("schema").Inc()
		if derr := s.invalidate(ctx, current.Path, "invalidate"); derr != nil {
			return nil, derr
		}
		return nil, ErrMiss
	}

	if !entry.Fingerprint().Equal(current) {
		metrics.CacheMissesTotal.WithLabelValues("stale").Inc()
		if derr := s.invalidate(ctx, current.Path, "invalidate"); derr != nil {
			return nil, derr
		}
		return nil, ErrMiss
	}

	metrics.CacheHitsTotal.Inc()
	s.touch(ctx, current.Path)

	// A hash-validated hit with stale cheap fields (a touched file)
	// refreshes the stored size and mtime, so the next run compares
	// cheaply instead of re-hashing.
	if !entry.Fingerprint().CheapEqual(current) {
		s.refreshFileInfo(ctx, current)
		entry.Size = current.Size
		entry.ModTime = current.ModTime
	}
	return entry, nil
}

// refreshFileInfo updates the stored cheap fingerprint fields for a
// path. Best effort; a failure only costs a re-hash next run.
func (s *Store) refreshFileInfo(ctx context.Context, fp fingerprint.Fingerprint) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx,
		"UPDATE file_info SET size = ?, modified_time = ? WHERE path = ?",
		fp.Size, fp.ModTime.Unix(), fp.Path); err != nil {
		logging.Debug("Failed to refresh file info for %s: %v", fp.Path, err)
	}
}

// touch refreshes updated_at after a validated hit. Best effort; a
// failure only skews LRU ordering.
func (s *Store) touch(ctx context.Context, path string) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx,
		"UPDATE metadata SET updated_at = strftime('%s', 'now') WHERE path = ?", path); err != nil {
		logging.Debug("Failed to touch %s: %v", path, err)
	}
}

// Invalidate removes the entry for a path.
func (s *Store) Invalidate(ctx context.Context, path string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("invalidate", start, err) }()

	s.barrier.RLock()
	defer s.barrier.RUnlock()
	s.paths.acquire(path)
	defer s.paths.release(path)

	err = s.invalidate(ctx, path, "deleted")
	return err
}

func (s *Store) invalidate(ctx context.Context, path, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM metadata WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", path, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM file_info WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to invalidate file info for %s: %w", path, err)
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n > 0 {
		metrics.CacheEvictionsTotal.WithLabelValues(reason).Inc()
	}
	return nil
}

// Len returns the number of cached entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	s.barrier.RLock()
	defer s.barrier.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM metadata").Scan(&n)
	return n, err
}

// SizeBytes returns the accounted cache size: the total length of the
// stored metadata payloads.
func (s *Store) SizeBytes(ctx context.Context) (int64, error) {
	s.barrier.RLock()
	defer s.barrier.RUnlock()
	return s.sizeBytes(ctx)
}

func (s *Store) sizeBytes(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var size sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(LENGTH(metadata_blob)), 0) FROM metadata").Scan(&size)
	if err != nil {
		return 0, err
	}
	metrics.StoreSizeBytes.Set(float64(size.Int64))
	return size.Int64, nil
}

// Fingerprints loads the stored fingerprint for every cached path, used
// to seed the tracker with the prior run's snapshot.
func (s *Store) Fingerprints(ctx context.Context) (map[string]fingerprint.Fingerprint, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("fingerprints", start, err) }()

	s.barrier.RLock()
	defer s.barrier.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT path, size, modified_time, hash FROM file_info")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	snapshot := make(map[string]fingerprint.Fingerprint)
	for rows.Next() {
		var (
			path    string
			size    int64
			modTime int64
			hash    string
		)
		if err = rows.Scan(&path, &size, &modTime, &hash); err != nil {
			return nil, err
		}
		fp := fingerprint.New(path, size, time.Unix(modTime, 0))
		fp.Hash = hash
		snapshot[path] = fp
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Meta reads a store_meta value. Returns sql.ErrNoRows when absent.
func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	s.barrier.RLock()
	defer s.barrier.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM store_meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetMeta sets a store_meta key-value pair.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	s.barrier.RLock()
	defer s.barrier.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
