// catalogctl administers the media-catalog cache store: migrations,
// backup/restore, pruning and stats. Destructive commands confirm on a
// TTY before touching the store.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"media-catalog/internal/cache"
	"media-catalog/internal/migrate"
)

const (
	defaultTimeout     = 5 * time.Minute
	defaultDatabaseDir = "/database"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	ctx, timeoutCancel := context.WithTimeout(ctx, defaultTimeout)
	defer timeoutCancel()

	databaseDir := os.Getenv("DATABASE_DIR")
	if databaseDir == "" {
		databaseDir = defaultDatabaseDir
	}
	dbPath := filepath.Join(databaseDir, "catalog.db")

	var ok bool
	switch command {
	case "migrate":
		ok = runMigrate(ctx, dbPath)
	case "dry-run":
		ok = runDryRun(ctx, dbPath)
	case "rollback":
		ok = runRollback(ctx, dbPath, args)
	case "backup":
		ok = runBackup(ctx, dbPath, args)
	case "restore":
		ok = runRestore(ctx, dbPath, args)
	case "prune":
		ok = runPrune(ctx, dbPath, args)
	case "stats":
		ok = runStats(ctx, dbPath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %q\n", command)
		printUsage()
	}
	if !ok {
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Media Catalog Administration")
	fmt.Println("")
	fmt.Println("Usage: catalogctl <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  migrate               - Apply pending schema migrations")
	fmt.Println("  dry-run               - Report what a migration would do, without committing")
	fmt.Println("  rollback [version]    - Restore the pre-migration backup, or reverse to version")
	fmt.Println("  backup <dest>         - Write a consistent store snapshot to <dest>")
	fmt.Println("  restore <src>         - Replace the store with the snapshot at <src>")
	fmt.Println("  prune max-bytes <n>   - Evict oldest entries until the store fits <n> bytes")
	fmt.Println("  prune max-age <dur>   - Evict entries not validated within <dur> (e.g. 720h)")
	fmt.Println("  prune smart <n>       - LRU eviction down to <n> bytes")
	fmt.Println("  stats                 - Show entry count, size and schema version")
	fmt.Println("")
	fmt.Println("Environment:")
	fmt.Printf("  DATABASE_DIR - Path to database directory (default: %s)\n", defaultDatabaseDir)
}

// confirm asks for an explicit yes on a TTY. Non-interactive callers
// (scripts, cron) are assumed to mean it.
func confirm(prompt string) bool {
	if !term.IsTerminal(syscall.Stdin) {
		return true
	}
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func openStore(ctx context.Context, dbPath string) (*cache.Store, bool) {
	store, err := cache.Open(ctx, dbPath, cache.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open store: %v\n", err)
		if errors.Is(err, cache.ErrNeedsMigration) {
			fmt.Fprintln(os.Stderr, "Run 'catalogctl migrate' first.")
		}
		return nil, false
	}
	return store, true
}

func runMigrate(ctx context.Context, dbPath string) bool {
	mgr := migrate.NewManager(dbPath, nil)
	plan, err := mgr.Plan(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	if len(plan) == 0 {
		fmt.Println("Store schema is current, nothing to migrate.")
		return true
	}

	fmt.Printf("Pending steps (%s -> %s):\n", plan[0].From, plan[len(plan)-1].To)
	for _, step := range plan {
		fmt.Printf("  %-12s %s -> %s  %s\n", step.Kind, step.From, step.To, step.Name)
	}
	if !confirm("Apply migration") {
		fmt.Println("Aborted.")
		return false
	}

	report, err := mgr.Apply(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: migration failed: %v\n", err)
		return false
	}
	fmt.Printf("Applied %d steps, store at schema %s.\n", len(report.Applied), report.To)
	fmt.Printf("Pre-migration backup: %s\n", mgr.BackupPath())
	return true
}

func runDryRun(ctx context.Context, dbPath string) bool {
	mgr := migrate.NewManager(dbPath, nil)
	report, err := mgr.DryRun(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: dry run failed: %v\n", err)
		return false
	}
	if len(report.Applied) == 0 {
		fmt.Println("Store schema is current, nothing to migrate.")
		return true
	}

	fmt.Printf("Dry run %s -> %s:\n", report.From, report.To)
	for _, step := range report.Applied {
		fmt.Printf("  applied %-12s %s -> %s  %s\n", step.Kind, step.From, step.To, step.Name)
	}
	fmt.Println("Row counts:")
	for table, diff := range report.Tables {
		fmt.Printf("  %-12s %d -> %d\n", table, diff.Before, diff.After)
	}
	fmt.Println("No changes were committed.")
	return true
}

func runRollback(ctx context.Context, dbPath string, args []string) bool {
	target := ""
	if len(args) > 0 {
		target = args[0]
	}
	if !confirm("Roll back the store schema (data written since migration may be lost)") {
		fmt.Println("Aborted.")
		return false
	}

	mgr := migrate.NewManager(dbPath, nil)
	if err := mgr.Rollback(ctx, target); err != nil {
		fmt.Fprintf(os.Stderr, "Error: rollback failed: %v\n", err)
		if errors.Is(err, migrate.ErrNotReversible) {
			fmt.Fprintln(os.Stderr, "Restore a backup instead: catalogctl restore <src>")
		}
		return false
	}
	fmt.Println("Rollback complete.")
	return true
}

func runBackup(ctx context.Context, dbPath string, args []string) bool {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: catalogctl backup <dest>")
		return false
	}
	store, ok := openStore(ctx, dbPath)
	if !ok {
		return false
	}
	defer store.Close()

	if err := store.Backup(ctx, args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: backup failed: %v\n", err)
		return false
	}
	fmt.Printf("Backup written to %s\n", args[0])
	return true
}

func runRestore(ctx context.Context, dbPath string, args []string) bool {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: catalogctl restore <src>")
		return false
	}
	if !confirm(fmt.Sprintf("Replace the store with %s (current contents will be lost)", args[0])) {
		fmt.Println("Aborted.")
		return false
	}

	store, ok := openStore(ctx, dbPath)
	if !ok {
		return false
	}
	defer store.Close()

	if err := store.Restore(ctx, args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: restore failed: %v\n", err)
		return false
	}
	fmt.Println("Restore complete.")
	return true
}

func runPrune(ctx context.Context, dbPath string, args []string) bool {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: catalogctl prune <max-bytes|max-age|smart> <value>")
		return false
	}

	var policy cache.PrunePolicy
	switch args[0] {
	case "max-bytes", "smart":
		n, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || n <= 0 {
			fmt.Fprintf(os.Stderr, "Error: invalid byte limit %q\n", args[1])
			return false
		}
		policy.Kind = cache.PruneMaxBytes
		if args[0] == "smart" {
			policy.Kind = cache.PruneSmart
		}
		policy.MaxBytes = n
	case "max-age":
		d, err := time.ParseDuration(args[1])
		if err != nil || d <= 0 {
			fmt.Fprintf(os.Stderr, "Error: invalid duration %q\n", args[1])
			return false
		}
		policy.Kind = cache.PruneMaxAge
		policy.MaxAge = d
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown prune policy %q\n", args[0])
		return false
	}

	if !confirm("Prune cache entries") {
		fmt.Println("Aborted.")
		return false
	}

	store, ok := openStore(ctx, dbPath)
	if !ok {
		return false
	}
	defer store.Close()

	evicted, err := store.Prune(ctx, policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: prune failed: %v\n", err)
		return false
	}
	fmt.Printf("Evicted %d entries.\n", evicted)
	return true
}

func runStats(ctx context.Context, dbPath string) bool {
	store, ok := openStore(ctx, dbPath)
	if !ok {
		return false
	}
	defer store.Close()

	entries, err := store.Len(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	size, err := store.SizeBytes(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}

	fmt.Printf("Store:          %s\n", dbPath)
	fmt.Printf("Entries:        %d\n", entries)
	fmt.Printf("Metadata bytes: %d\n", size)
	fmt.Printf("Schema:         %s\n", cache.CurrentSchemaVersion)

	if created, err := store.Meta(ctx, "created_at"); err == nil {
		fmt.Printf("Created:        %s\n", created)
	} else if !errors.Is(err, sql.ErrNoRows) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	return true
}
