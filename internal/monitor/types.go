package monitor

import (
	"time"

	"gpuwatch/internal/aggregate"
	"gpuwatch/internal/sampling"
)

const (
	// MinRunDuration is the shortest run that can be profiled at all.
	MinRunDuration = time.Second
	// AccurateRunDuration is the shortest run whose report is not flagged.
	AccurateRunDuration = 5 * time.Second
)

// Options configures one profiling run.
type Options struct {
	// RunID labels logs and the Result. A random UUID is used when empty.
	RunID         string
	Workload      []string
	SamplerBinary string
	Interval      time.Duration
	StartupDelay  time.Duration
	Spec          sampling.MetricSpec
	// KillGrace bounds how long an interrupted workload may take to exit
	// after SIGTERM before it is killed. Zero waits indefinitely.
	KillGrace time.Duration
}

// RunTiming brackets the workload's execution.
type RunTiming struct {
	Start        time.Time     `json:"start"`
	End          time.Time     `json:"end"`
	StartupDelay time.Duration `json:"startup_delay_ns"`
}

// Elapsed is the sampled portion of the run: wall time minus the startup delay.
func (t RunTiming) Elapsed() time.Duration {
	return t.End.Sub(t.Start) - t.StartupDelay
}

// Validity annotates a successful run.
type Validity string

const (
	// ValidityOK means the run was long enough for reliable numbers.
	ValidityOK Validity = "ok"
	// ValidityInaccurate means the run lasted under AccurateRunDuration.
	ValidityInaccurate Validity = "inaccurate"
	// ValidityInterrupted means the workload was terminated before it finished.
	ValidityInterrupted Validity = "interrupted"
)

// Result is the outcome of a successful run.
type Result struct {
	RunID            string
	Command          []string
	Stats            aggregate.Stats
	Summary          aggregate.Summary
	Timing           RunTiming
	Validity         Validity
	Interrupted      bool
	WorkloadExitCode int
}
