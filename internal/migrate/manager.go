package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-catalog/internal/cache"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// State is the migration manager's position in its lifecycle.
type State string

const (
	// StateUnversioned means the store has tables but no recorded
	// schema version; it cannot be migrated safely.
	StateUnversioned State = "unversioned"
	// StateMigrating means steps are being applied to a working copy.
	StateMigrating State = "migrating"
	// StateFailed means the last migration attempt failed; the live
	// store is guaranteed untouched.
	StateFailed State = "failed"
	// StateValid means the store matches the engine's schema version.
	StateValid State = "valid"
)

var (
	// ErrNotReversible is returned when a rollback would have to undo a
	// step that defines no reverse operation and no backup exists.
	ErrNotReversible = errors.New("migration step is not reversible")
	// ErrUnversioned is returned for stores that predate version
	// tracking; they must be rebuilt or versioned manually.
	ErrUnversioned = errors.New("store has no schema version")
)

// Options configures a Manager.
type Options struct {
	// Steps overrides the migration history; nil means AllSteps.
	Steps []Step
	// BackupPath overrides the pre-migration snapshot location;
	// empty means "<store>.pre-migration.bak".
	BackupPath string
	// SuppressBackup skips the automatic pre-migration snapshot.
	SuppressBackup bool
}

// Manager migrates the store file at dbPath.
type Manager struct {
	dbPath         string
	backupPath     string
	steps          []Step
	suppressBackup bool
	state          State
}

// StepResult reports one step's outcome.
type StepResult struct {
	Name string
	Kind StepKind
	From string
	To   string
}

// TableDiff is a dry-run row-count comparison for one table.
type TableDiff struct {
	Before int64
	After  int64
}

// Report summarizes a migration or dry run.
type Report struct {
	From    string
	To      string
	Applied []StepResult
	// Tables is populated by DryRun only.
	Tables map[string]TableDiff
}

// NewManager creates a migration manager for the store at dbPath.
func NewManager(dbPath string, opts *Options) *Manager {
	m := &Manager{
		dbPath:     dbPath,
		backupPath: dbPath + ".pre-migration.bak",
		steps:      AllSteps,
		state:      StateValid,
	}
	if opts != nil {
		if opts.Steps != nil {
			m.steps = opts.Steps
		}
		if opts.BackupPath != "" {
			m.backupPath = opts.BackupPath
		}
		m.suppressBackup = opts.SuppressBackup
	}
	return m
}

// State returns the manager's current state.
func (m *Manager) State() State {
	return m.state
}

// BackupPath returns where the pre-migration snapshot is written.
func (m *Manager) BackupPath() string {
	return m.backupPath
}

// PersistedVersion reads the store's recorded schema version.
// It returns "" for a store file that does not exist yet and
// ErrUnversioned for one that exists without version tracking.
func (m *Manager) PersistedVersion(ctx context.Context) (string, error) {
	if _, err := os.Stat(m.dbPath); os.IsNotExist(err) {
		return "", nil
	}

	db, err := openRaw(m.dbPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = db.Close() }()

	var name string
	err = db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='store_meta'").Scan(&name)
	if err == sql.ErrNoRows {
		// An empty file is fresh; tables without store_meta are not.
		var any string
		err = db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' LIMIT 1").Scan(&any)
		if err == sql.ErrNoRows {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return "", ErrUnversioned
	}
	if err != nil {
		return "", err
	}

	var version string
	err = db.QueryRowContext(ctx,
		"SELECT value FROM store_meta WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return "", ErrUnversioned
	}
	if err != nil {
		return "", err
	}
	return version, nil
}

// Plan returns the ordered steps pending between the persisted version
// and the engine's. An empty plan means the store is current (or does
// not exist yet and will be created current).
func (m *Manager) Plan(ctx context.Context) ([]Step, error) {
	version, err := m.PersistedVersion(ctx)
	if err != nil {
		if errors.Is(err, ErrUnversioned) {
			m.state = StateUnversioned
		}
		return nil, err
	}
	if version == "" {
		return nil, nil
	}
	return m.pending(version)
}

// pending walks the step chain from the given version to the engine's.
func (m *Manager) pending(from string) ([]Step, error) {
	have, err := semver.NewVersion(from)
	if err != nil {
		return nil, fmt.Errorf("invalid persisted schema version %q: %w", from, err)
	}
	want := semver.MustParse(cache.CurrentSchemaVersion)

	if have.GreaterThan(want) {
		return nil, fmt.Errorf("%w: store is %s, engine supports %s",
			cache.ErrSchemaTooNew, from, cache.CurrentSchemaVersion)
	}
	if have.Equal(want) {
		return nil, nil
	}

	var plan []Step
	current := from
	for current != cache.CurrentSchemaVersion {
		next, ok := m.stepFrom(current)
		if !ok {
			return nil, fmt.Errorf("no migration step leads from schema version %s", current)
		}
		plan = append(plan, next)
		current = next.To
	}
	return plan, nil
}

func (m *Manager) stepFrom(version string) (Step, bool) {
	for _, step := range m.steps {
		if step.From == version {
			return step, true
		}
	}
	return Step{}, false
}

// Apply migrates the store to the engine's schema version. Steps run
// against a working copy; the live file is replaced only after every
// step succeeds, so a failed migration leaves the live store untouched.
func (m *Manager) Apply(ctx context.Context) (*Report, error) {
	plan, err := m.Plan(ctx)
	if err != nil {
		if errors.Is(err, cache.ErrSchemaTooNew) {
			m.state = StateFailed
		}
		return nil, err
	}
	if len(plan) == 0 {
		m.state = StateValid
		metrics.MigrationsTotal.WithLabelValues("noop").Inc()
		return &Report{From: cache.CurrentSchemaVersion, To: cache.CurrentSchemaVersion}, nil
	}

	m.state = StateMigrating
	logging.Info("Migrating store %s: %s -> %s (%d steps)",
		m.dbPath, plan[0].From, cache.CurrentSchemaVersion, len(plan))

	if !m.suppressBackup {
		if err := copyFile(m.dbPath, m.backupPath); err != nil {
			m.state = StateFailed
			return nil, fmt.Errorf("failed to snapshot pre-migration backup: %w", err)
		}
		logging.Info("Pre-migration backup at %s", m.backupPath)
	}

	working := m.dbPath + ".migrating"
	report, err := m.applyToCopy(ctx, working, plan)
	if err != nil {
		_ = os.Remove(working)
		m.state = StateFailed
		metrics.MigrationsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	if err := m.swapIn(working); err != nil {
		_ = os.Remove(working)
		m.state = StateFailed
		metrics.MigrationsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	m.state = StateValid
	metrics.MigrationsTotal.WithLabelValues("applied").Inc()
	logging.Info("Migration complete: store at schema %s", cache.CurrentSchemaVersion)
	return report, nil
}

// applyToCopy copies the live store to dest and applies the plan there.
func (m *Manager) applyToCopy(ctx context.Context, dest string, plan []Step) (*Report, error) {
	if err := copyFile(m.dbPath, dest); err != nil {
		return nil, fmt.Errorf("failed to create working copy: %w", err)
	}

	db, err := openRaw(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to open working copy: %w", err)
	}
	defer func() { _ = db.Close() }()

	report := &Report{From: plan[0].From, To: plan[len(plan)-1].To}
	for _, step := range plan {
		if err := applyStep(ctx, db, step, step.Up, step.To); err != nil {
			return nil, fmt.Errorf("migration step %q (%s -> %s) failed: %w",
				step.Name, step.From, step.To, err)
		}
		report.Applied = append(report.Applied, StepResult{
			Name: step.Name, Kind: step.Kind, From: step.From, To: step.To,
		})
		logging.Debug("Applied step %q (%s -> %s)", step.Name, step.From, step.To)
	}

	// Migrated entries now conform to the target layout; stamp them so
	// lookups do not evict them as schema mismatches.
	if err := stampRowVersions(ctx, db, report.To); err != nil {
		return nil, err
	}

	// Flush the WAL so the copy is self-contained before the swap.
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, fmt.Errorf("failed to checkpoint working copy: %w", err)
	}
	return report, nil
}

// stampRowVersions rewrites the per-entry schema version after a
// migration or rollback.
func stampRowVersions(ctx context.Context, db *sql.DB, version string) error {
	if _, err := db.ExecContext(ctx,
		"UPDATE metadata SET schema_version = ?", version); err != nil {
		return fmt.Errorf("failed to stamp entry schema versions: %w", err)
	}
	return nil
}

// applyStep runs one step's SQL and records the resulting version in
// the same transaction.
func applyStep(ctx context.Context, db *sql.DB, step Step, sqlText, resultVersion string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, sqlText); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO store_meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, resultVersion); err != nil {
		return err
	}
	return tx.Commit()
}

// swapIn atomically replaces the live store with the migrated copy.
func (m *Manager) swapIn(working string) error {
	_ = os.Remove(m.dbPath + "-wal")
	_ = os.Remove(m.dbPath + "-shm")
	if err := os.Rename(working, m.dbPath); err != nil {
		return fmt.Errorf("failed to swap migrated store into place: %w", err)
	}
	return nil
}

// DryRun applies the pending plan to a throwaway copy and reports the
// steps plus a per-table row-count diff. The live store and the
// persisted version are never modified.
func (m *Manager) DryRun(ctx context.Context) (*Report, error) {
	plan, err := m.Plan(ctx)
	if err != nil {
		return nil, err
	}
	if len(plan) == 0 {
		return &Report{From: cache.CurrentSchemaVersion, To: cache.CurrentSchemaVersion}, nil
	}

	scratch, err := os.CreateTemp("", "catalog-dryrun-*.db")
	if err != nil {
		return nil, err
	}
	scratchPath := scratch.Name()
	_ = scratch.Close()
	defer func() { _ = os.Remove(scratchPath) }()

	before, err := m.tableCounts(ctx, m.dbPath)
	if err != nil {
		return nil, err
	}

	report, err := m.applyToCopy(ctx, scratchPath, plan)
	if err != nil {
		return nil, err
	}

	after, err := m.tableCounts(ctx, scratchPath)
	if err != nil {
		return nil, err
	}

	report.Tables = make(map[string]TableDiff)
	for table, n := range after {
		report.Tables[table] = TableDiff{Before: before[table], After: n}
	}
	return report, nil
}

// tableCounts returns row counts for every user table in the store.
func (m *Manager) tableCounts(ctx context.Context, dbPath string) (map[string]int64, error) {
	db, err := openRaw(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, err
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		var n int64
		// Table names come from sqlite_master, not user input.
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, err
		}
		counts[table] = n
	}
	return counts, nil
}

// Rollback returns the store to its pre-migration state. When the
// pre-migration backup exists it is swapped in; otherwise the reverse
// operations are applied in reverse order down to target. A step
// without a reverse operation refuses rollback rather than losing data.
func (m *Manager) Rollback(ctx context.Context, target string) error {
	if _, err := os.Stat(m.backupPath); err == nil {
		// Stage next to the live file so the swap is a single rename; a
		// failed copy never leaves the store half-overwritten.
		working := m.dbPath + ".rollback"
		if err := copyFile(m.backupPath, working); err != nil {
			_ = os.Remove(working)
			return fmt.Errorf("failed to restore pre-migration backup: %w", err)
		}
		if err := m.swapIn(working); err != nil {
			_ = os.Remove(working)
			return err
		}
		metrics.MigrationsTotal.WithLabelValues("rolled_back").Inc()
		logging.Info("Rolled back store from backup %s", m.backupPath)
		return nil
	}

	if target == "" {
		return fmt.Errorf("no pre-migration backup at %s and no rollback target given", m.backupPath)
	}

	version, err := m.PersistedVersion(ctx)
	if err != nil {
		return err
	}
	if version == "" {
		return fmt.Errorf("store %s does not exist", m.dbPath)
	}

	chain, err := m.reverseChain(target, version)
	if err != nil {
		return err
	}

	working := m.dbPath + ".rollback"
	if err := copyFile(m.dbPath, working); err != nil {
		return fmt.Errorf("failed to create rollback working copy: %w", err)
	}

	db, err := openRaw(working)
	if err != nil {
		_ = os.Remove(working)
		return err
	}

	for _, step := range chain {
		if err := applyStep(ctx, db, step, step.Down, step.From); err != nil {
			_ = db.Close()
			_ = os.Remove(working)
			return fmt.Errorf("rollback of step %q (%s -> %s) failed: %w",
				step.Name, step.To, step.From, err)
		}
	}
	if err := stampRowVersions(ctx, db, target); err != nil {
		_ = db.Close()
		_ = os.Remove(working)
		return err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		_ = db.Close()
		_ = os.Remove(working)
		return fmt.Errorf("failed to checkpoint rollback copy: %w", err)
	}
	_ = db.Close()

	if err := m.swapIn(working); err != nil {
		_ = os.Remove(working)
		return err
	}

	metrics.MigrationsTotal.WithLabelValues("rolled_back").Inc()
	logging.Info("Rolled back store to schema %s", target)
	return nil
}

// reverseChain collects the steps between target and current, newest
// first, verifying each is reversible.
func (m *Manager) reverseChain(target, current string) ([]Step, error) {
	forward, err := func() ([]Step, error) {
		var chain []Step
		v := target
		for v != current {
			step, ok := m.stepFrom(v)
			if !ok {
				return nil, fmt.Errorf("no migration step leads from schema version %s", v)
			}
			chain = append(chain, step)
			v = step.To
		}
		return chain, nil
	}()
	if err != nil {
		return nil, err
	}

	reversed := make([]Step, 0, len(forward))
	for i := len(forward) - 1; i >= 0; i-- {
		step := forward[i]
		if !step.Reversible || step.Down == "" {
			return nil, fmt.Errorf("%w: %q (%s -> %s)", ErrNotReversible, step.Name, step.From, step.To)
		}
		reversed = append(reversed, step)
	}
	return reversed, nil
}

// openRaw opens a store file with the catalog's standard settings.
func openRaw(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3",
		fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
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
