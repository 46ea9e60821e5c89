package workers

import (
	"runtime"
)

// Count sizes a worker pool from the available CPUs. It respects
// container CPU limits via GOMAXPROCS (Go 1.19+).
//
// The multiplier adjusts for task characteristics: extraction work is
// a mix of disk reads, subprocess waits and decoding, so it benefits
// from more workers than CPUs.
//
// The limit parameter caps the worker count to prevent resource
// exhaustion. Use 0 for no limit. The result is always at least 1.
func Count(multiplier float64, limit int) int {
	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForMixed returns the worker count for mixed I/O and CPU work
// (1.5 per CPU), the profile of the extraction pipeline.
func ForMixed(limit int) int {
	return Count(1.5, limit)
}
