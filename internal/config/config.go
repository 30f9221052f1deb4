package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"gpuwatch/internal/configdir"
)

const configFileName = "config.yaml"

// ErrInvalid is wrapped by every validation failure returned from Load.
var ErrInvalid = errors.New("config.validation.error")

// Load loads, merges and validates configuration. See Read for the layering.
func Load(explicitPath string) (Config, error) {
	cfg, err := Read(explicitPath)
	if err != nil {
		return cfg, err
	}
	return cfg, Check(cfg)
}

// Read merges configuration from the system file, the user file and an
// optional explicit file without validating it, so callers can overlay
// command line values before calling Check.
// Priority: defaults < system config < user config < explicit path
// A missing system or user file is fine; a missing explicit file is not.
func Read(explicitPath string) (Config, error) {
	cfg := DefaultConfig()

	if err := mergeConfigFile(&cfg, SystemConfigPath()); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to load system config: %w", err)
	}

	if userPath := UserConfigPath(); userPath != "" {
		if err := mergeConfigFile(&cfg, userPath); err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if explicitPath != "" {
		if err := mergeConfigFile(&cfg, explicitPath); err != nil {
			return cfg, fmt.Errorf("failed to load config from %s: %w", explicitPath, err)
		}
	}

	return cfg, nil
}

// LoadFrom loads configuration from a specific file path on top of defaults
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := mergeConfigFile(&cfg, path); err != nil {
		return cfg, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return cfg, Check(cfg)
}

// Check validates cfg and folds any problems into a single error wrapping ErrInvalid.
func Check(cfg Config) error {
	if validationErrors := cfg.Validate(); len(validationErrors) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, formatValidationErrors(validationErrors))
	}
	return nil
}

// mergeConfigFile decodes a YAML file on top of cfg. Keys absent from the file
// keep their current values, which also lets files turn booleans off.
func mergeConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is operator supplied
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// formatValidationErrors formats validation errors for display
func formatValidationErrors(errors []ValidationError) string {
	if len(errors) == 1 {
		return errors[0].Error()
	}
	result := fmt.Sprintf("%d validation errors:\n", len(errors))
	for _, err := range errors {
		result += "  - " + err.Error() + "\n"
	}
	return result
}

// SystemConfigPath returns the path to the system configuration file
func SystemConfigPath() string {
	return filepath.Join(configdir.ConfigDir(), configFileName)
}

// UserConfigPath returns the path to the user configuration file
func UserConfigPath() string {
	dir := configdir.UserDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, configFileName)
}
