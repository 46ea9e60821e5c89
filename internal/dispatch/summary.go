package dispatch

import (
	"fmt"
	"time"
)

// Result classifies a completed run.
type Result string

const (
	// ResultSuccess means every file was processed or served from cache.
	ResultSuccess Result = "success"
	// ResultPartialFailure means some files were skipped but the run
	// completed and the store is consistent.
	ResultPartialFailure Result = "partial_failure"
	// ResultFatal means the run aborted before completion.
	ResultFatal Result = "fatal"
)

// Summary is the outcome of one catalog run.
type Summary struct {
	Processed int64
	CacheHits int64
	Skipped   int64
	Errors    int64
	Deleted   int64
	Duration  time.Duration
	Fatal     bool
}

// Result maps the summary onto a run classification.
func (s *Summary) Result() Result {
	switch {
	case s.Fatal:
		return ResultFatal
	case s.Errors > 0 || s.Skipped > 0:
		return ResultPartialFailure
	default:
		return ResultSuccess
	}
}

// String renders the one-line run report.
func (s *Summary) String() string {
	return fmt.Sprintf("processed=%d cache_hits=%d skipped=%d errors=%d deleted=%d duration=%v result=%s",
		s.Processed, s.CacheHits, s.Skipped, s.Errors, s.Deleted,
		s.Duration.Round(time.Millisecond), s.Result())
}
