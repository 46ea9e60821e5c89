// Package fingerprint detects per-file change cheaply.
//
// A fingerprint is (size, mtime) plus an optional BLAKE2b-256 content
// hash. The Tracker compares the current scan against the previous
// run's snapshot and classifies every path as New, Deleted, Unchanged,
// Modified or ContentChanged. With hash checking enabled a size/mtime
// mismatch triggers a content hash; if the bytes are identical the file
// was merely touched and stays Unchanged, avoiding a wasted
// re-extraction.
package fingerprint
