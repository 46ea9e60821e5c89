// Package cache provides the durable, path-keyed metadata store.
//
// Entries are keyed by file path and carry the fingerprint (size,
// mtime, content hash) observed at extraction time plus the opaque
// metadata payload. A lookup is a hit only when the stored fingerprint
// matches the file's current fingerprint and the entry's schema version
// matches the engine's; any mismatch deletes the stale row and reports
// a miss, so size accounting never counts orphans.
//
// Writes to different paths proceed independently; writes to the same
// path serialize on a per-path lock. Backup, restore and prune take a
// store-wide barrier that waits for in-flight writes to drain.
//
// The store refuses to open when the persisted schema version is newer
// than the engine understands, and reports ErrNeedsMigration when it is
// older; the migrate package resolves the latter before any reads or
// writes are trusted.
package cache
