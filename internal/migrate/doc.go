// Package migrate evolves the cache store's on-disk schema across
// versions.
//
// Migrations are a versioned list of discrete steps (AddColumn,
// Backfill, CreateTable, Reindex), each with a forward operation and,
// where feasible, a reverse operation. Steps are applied to a working
// copy of the store, never the live file; on success the working copy
// atomically replaces the live store, on any failure the live store is
// untouched and the error names the failing step. A backup snapshot is
// taken before the first step unless explicitly suppressed, and
// Rollback restores it (or reverse-applies the steps when every step
// is reversible). DryRun executes the plan against a throwaway copy
// and reports the diff without committing anything.
package migrate
