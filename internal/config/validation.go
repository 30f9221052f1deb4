package config

import (
	"fmt"
	"strings"
)

const (
	// ColorAuto enables color only when the output is a terminal.
	ColorAuto = "auto"
	// ColorAlways forces ANSI color.
	ColorAlways = "always"
	// ColorNever disables color.
	ColorNever = "never"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSampler()...)
	errors = append(errors, c.validateWorkload()...)
	errors = append(errors, c.validateLock()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateReport()...)

	return errors
}

func (c *Config) validateSampler() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Sampler.Binary) == "" {
		errors = append(errors, ValidationError{
			Path:    "sampler.binary",
			Message: "must not be empty",
		})
	}

	if c.Sampler.IntervalMs <= 0 {
		errors = append(errors, ValidationError{
			Path:    "sampler.interval_ms",
			Message: fmt.Sprintf("must be positive, got %d", c.Sampler.IntervalMs),
		})
	}

	if c.Sampler.StartupDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Path:    "sampler.startup_delay_seconds",
			Message: fmt.Sprintf("must be non-negative, got %d", c.Sampler.StartupDelaySeconds),
		})
	}

	return errors
}

func (c *Config) validateWorkload() []ValidationError {
	if c.Workload.KillGraceSeconds >= 0 {
		return nil
	}

	return []ValidationError{{
		Path:    "workload.kill_grace_seconds",
		Message: fmt.Sprintf("must be non-negative, got %d", c.Workload.KillGraceSeconds),
	}}
}

func (c *Config) validateLock() []ValidationError {
	if c.Lock.LeaseTimeoutSeconds >= 0 {
		return nil
	}

	return []ValidationError{{
		Path:    "lock.lease_timeout_seconds",
		Message: fmt.Sprintf("must be non-negative, got %d", c.Lock.LeaseTimeoutSeconds),
	}}
}

func (c *Config) validateLogging() []ValidationError {
	validLevels := []string{"debug", "info", "warn", "error"}
	if contains(validLevels, c.Logging.Level) {
		return nil
	}

	return []ValidationError{{
		Path:    "logging.level",
		Message: fmt.Sprintf("must be one of %v, got '%s'", validLevels, c.Logging.Level),
	}}
}

func (c *Config) validateReport() []ValidationError {
	validModes := []string{ColorAuto, ColorAlways, ColorNever}
	if contains(validModes, c.Report.Color) {
		return nil
	}

	return []ValidationError{{
		Path:    "report.color",
		Message: fmt.Sprintf("must be one of %v, got '%s'", validModes, c.Report.Color),
	}}
}

// contains checks if a string is in a slice
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
