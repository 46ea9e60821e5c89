// Package workers sizes the extraction worker pool in containerized
// environments.
//
// runtime.NumCPU() reports the host machine's CPU count even when a
// cgroup limit caps the process at far fewer cores. Go 1.19+ sets
// GOMAXPROCS from the container CPU limit, so these helpers size pools
// from GOMAXPROCS instead.
//
// Operator overrides for the worker count live in the config package;
// this package only computes the CPU-derived default.
package workers
