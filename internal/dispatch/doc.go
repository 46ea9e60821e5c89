// Package dispatch drives a catalog run: it fans the scanned file list
// across a bounded worker pool in batches, consulting the cache before
// extracting, and produces the run summary.
//
// Per-file failures never abort a batch or the run; they are counted
// and the file is skipped. The final store state is deterministic for
// any worker count because each path is handled by exactly one worker
// and same-path writes serialize inside the store. Cancellation is
// graceful: in-flight files finish, no new batch starts.
package dispatch
