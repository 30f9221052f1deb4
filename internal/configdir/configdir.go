package configdir

import (
	"os"
	"path/filepath"
)

const (
	defaultConfigDir = "/etc/gpuwatch"
	userConfigDir    = ".gpuwatch"
)

// ConfigDir resolves the system configuration directory respecting
// GPUWATCH_CONFIG_DIR.
func ConfigDir() string {
	if env := os.Getenv("GPUWATCH_CONFIG_DIR"); env != "" {
		if abs, err := filepath.Abs(env); err == nil {
			return abs
		}
	}
	return defaultConfigDir
}

// UserDir returns ~/.gpuwatch, or "" when the home directory is unknown.
func UserDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, userConfigDir)
}
