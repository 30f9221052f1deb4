package config

const (
	// DefaultSamplerBinary is the NVIDIA System Management Interface CLI.
	DefaultSamplerBinary = "nvidia-smi"
	// DefaultIntervalMs matches the historical 500ms polling cadence.
	DefaultIntervalMs = 500
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Sampler: SamplerConfig{
			Binary:              DefaultSamplerBinary,
			IntervalMs:          DefaultIntervalMs,
			StartupDelaySeconds: 0,
		},
		Workload: WorkloadConfig{
			KillGraceSeconds: 10,
		},
		Lock: LockConfig{
			Enabled:             true,
			LeaseTimeoutSeconds: 0, // rely on holder PID liveness
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
		Report: ReportConfig{
			Color: ColorAuto,
		},
	}
}
