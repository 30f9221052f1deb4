package config

import "time"

// Config represents the complete gpuwatch configuration
type Config struct {
	Sampler  SamplerConfig  `yaml:"sampler"`
	Workload WorkloadConfig `yaml:"workload"`
	Lock     LockConfig     `yaml:"lock"`
	Logging  LoggingConfig  `yaml:"logging"`
	Report   ReportConfig   `yaml:"report"`
}

// SamplerConfig configures the telemetry polling command
type SamplerConfig struct {
	Binary              string `yaml:"binary"`
	IntervalMs          int    `yaml:"interval_ms"`
	StartupDelaySeconds int    `yaml:"startup_delay_seconds"`
}

// WorkloadConfig configures how the profiled command is torn down on interrupt
type WorkloadConfig struct {
	KillGraceSeconds int `yaml:"kill_grace_seconds"`
}

// LockConfig configures the profiling lease
type LockConfig struct {
	Enabled             bool   `yaml:"enabled"`
	StateDir            string `yaml:"state_dir"`
	LeaseTimeoutSeconds int    `yaml:"lease_timeout_seconds"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ReportConfig controls summary rendering
type ReportConfig struct {
	Color    string `yaml:"color"`
	JSONPath string `yaml:"json_path"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Message
}

// Interval returns the sampler polling interval.
func (s SamplerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

// StartupDelay returns the delay between workload and sampler start.
func (s SamplerConfig) StartupDelay() time.Duration {
	return time.Duration(s.StartupDelaySeconds) * time.Second
}

// KillGrace returns how long an interrupted workload gets before SIGKILL.
func (w WorkloadConfig) KillGrace() time.Duration {
	return time.Duration(w.KillGraceSeconds) * time.Second
}

// LeaseTimeout returns the lease expiry; zero disables time-based expiry.
func (l LockConfig) LeaseTimeout() time.Duration {
	return time.Duration(l.LeaseTimeoutSeconds) * time.Second
}
