package sandbox

import "time"

// compileResult is the outcome of the optional compile phase.
type compileResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

func (c compileResult) failed() bool {
	return c.TimedOut || c.ExitCode != 0
}

// runResult is the outcome of the run phase, before resource sampling.
type runResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// statsResult is the subset of the engine's resource report we keep.
// Field tags follow the Docker Engine stats document.
type statsResult struct {
	MemoryStats struct {
		Usage    uint64 `json:"usage"`
		MaxUsage uint64 `json:"max_usage"`
		Limit    uint64 `json:"limit"`
	} `json:"memory_stats"`
	PidsStats struct {
		Current uint64 `json:"current"`
	} `json:"pids_stats"`
}

// PeakMemoryBytes prefers the high-water mark and falls back to current
// usage where none was reported.
func (s statsResult) PeakMemoryBytes() int64 {
	if s.MemoryStats.MaxUsage > 0 {
		return int64(s.MemoryStats.MaxUsage) //nolint:gosec // bounded by the container memory limit
	}
	return int64(s.MemoryStats.Usage) //nolint:gosec // bounded by the container memory limit
}
