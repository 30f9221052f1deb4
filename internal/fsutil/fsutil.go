package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"gpuwatch/internal/logging"
)

const (
	// StateDirEnv overrides the state directory (lease files).
	StateDirEnv = "GPUWATCH_STATE_DIR"
	// DefaultStatePermissions is the default permission for state directories
	DefaultStatePermissions = 0o750
	// DefaultFilePermissions is the default permission for state files
	DefaultFilePermissions = 0o600
	// ReportFilePermissions is used for JSON reports meant to be shared.
	ReportFilePermissions = 0o644
	// SharedFilePermissions lets every user on the host read a lease.
	SharedFilePermissions = 0o644
	// SharedDirPermissions is world-writable with the sticky bit, like /tmp.
	SharedDirPermissions = os.ModeSticky | 0o777
)

// DefaultStateDir is shared by every user on the host so that concurrent
// profiling runs see each other's lease.
func DefaultStateDir() string {
	return filepath.Join(os.TempDir(), "gpuwatch")
}

// GetStateDir returns the state directory from the environment, the configured
// value, or DefaultStateDir, in that order.
func GetStateDir(configured string) string {
	if env := os.Getenv(StateDirEnv); env != "" {
		if abs, err := filepath.Abs(env); err == nil {
			return abs
		}
		return env
	}
	if configured != "" {
		return configured
	}
	return DefaultStateDir()
}

// EnsureDir creates path with DefaultStatePermissions if it doesn't exist.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, DefaultStatePermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// EnsureSharedDir creates path with SharedDirPermissions so users other than
// the creator can add and remove their own files in it. An existing directory
// is left as is.
func EnsureSharedDir(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(path, SharedDirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	// MkdirAll is subject to the umask.
	if err := os.Chmod(path, SharedDirPermissions); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	return nil
}

// AtomicWriteFile writes data to a temp file in the target directory and
// renames it over path, so readers never observe a partial file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode, logger *logging.Logger) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	tmpPath, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		removeTemp(tmpPath, logger)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// ExclusiveWriteFile publishes data at path only if path does not exist yet.
// The content is complete before the file becomes visible. When path already
// exists the returned error satisfies errors.Is(err, fs.ErrExist).
// The parent directory must exist.
func ExclusiveWriteFile(path string, data []byte, perm os.FileMode, logger *logging.Logger) error {
	tmpPath, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	defer removeTemp(tmpPath, logger)

	// link(2) fails with EEXIST instead of replacing path.
	if err := os.Link(tmpPath, path); err != nil {
		return fmt.Errorf("failed to publish file: %w", err)
	}
	return nil
}

// writeTemp writes data to a uniquely named file next to path and returns its name.
func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	// CreateTemp always uses 0600.
	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to set permissions on temp file: %w", err)
	}
	return tmpPath, nil
}

func removeTemp(tmpPath string, logger *logging.Logger) {
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) && logger != nil {
		logger.Warn("fsutil.cleanup.failed", "Failed to remove temp file", map[string]interface{}{
			"path":  tmpPath,
			"error": err.Error(),
		})
	}
}

// CloseWithError closes a resource and logs any error if a logger is provided.
func CloseWithError(closer func() error, logger *logging.Logger, resource string) {
	if err := closer(); err != nil && logger != nil {
		logger.Warn("fsutil.close.failed", fmt.Sprintf("Failed to close %s", resource), map[string]interface{}{
			"error": err.Error(),
		})
	}
}
