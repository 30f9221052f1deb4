// Package gpulock keeps two profiling runs from sampling the same host at
// once. The lease is a JSON file in the state directory.
package gpulock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gpuwatch/internal/fsutil"
	"gpuwatch/internal/logging"
)

const (
	// LockFileName is the name of the GPU lock file
	LockFileName = "gpu_lock.json"

	maxAcquireAttempts = 3
)

// Manager manages GPU lease acquisition and release
type Manager struct {
	stateDir     string
	logger       *logging.Logger
	leaseTimeout time.Duration
	alive        func(pid int) bool
	now          func() time.Time
}

// NewManager creates a lease manager. A lease is held for as long as its
// holder process is alive; see SetLeaseTimeout for an upper bound.
func NewManager(stateDir string, logger *logging.Logger) *Manager {
	return &Manager{
		stateDir: stateDir,
		logger:   logger,
		alive:    processAlive,
		now:      time.Now,
	}
}

// SetLeaseTimeout bounds the age of a lease. Zero disables the bound.
func (m *Manager) SetLeaseTimeout(d time.Duration) {
	m.leaseTimeout = d
}

// Path returns the full path to the lease file
func (m *Manager) Path() string {
	return filepath.Join(m.stateDir, LockFileName)
}

// Acquire takes the lease for holder. It fails with ErrLocked while another
// live run holds it, or when the lease belongs to another user and can not be
// inspected or cleared. Stale leases are cleared first.
func (m *Manager) Acquire(holder Holder) error {
	if !holder.IsValid() {
		return fmt.Errorf("invalid holder: %+v", holder)
	}

	if err := fsutil.EnsureSharedDir(m.stateDir); err != nil {
		return fmt.Errorf("failed to prepare state directory: %w", err)
	}

	data, err := json.MarshalIndent(&LockInfo{Holder: holder, SinceTS: m.now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock: %w", err)
	}

	// Each pass either publishes the lease or clears one stale lease, so a
	// small bound is enough even when runs race.
	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		err := fsutil.ExclusiveWriteFile(m.Path(), data, fsutil.SharedFilePermissions, m.logger)
		if err == nil {
			m.logger.Info("gpu.lock.acquired", "GPU lease acquired", map[string]interface{}{
				"run_id": holder.RunID,
				"pid":    holder.PID,
			})
			return nil
		}
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: state directory %s is not writable by this user", ErrLocked, m.stateDir)
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("failed to save lock: %w", err)
		}

		existing, err := m.loadLock()
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Released between our write and read.
			continue
		case errors.Is(err, fs.ErrPermission):
			return fmt.Errorf("%w: lease %s belongs to another user", ErrLocked, m.Path())
		case err != nil:
			return fmt.Errorf("failed to read existing lock: %w", err)
		}

		if existing.Holder.RunID == holder.RunID {
			m.logger.Info("gpu.lock.already_held", "GPU lease already held by this run", map[string]interface{}{
				"run_id": holder.RunID,
			})
			return nil
		}

		reason := m.staleReason(existing)
		if reason == "" {
			return fmt.Errorf("%w: %s, pid %d, acquired %s ago", ErrLocked,
				existing.Holder.String(),
				existing.Holder.PID,
				m.age(existing).Round(time.Second))
		}

		m.logger.Warn("gpu.lock.stale_detected", "Stale GPU lease detected", map[string]interface{}{
			"current_holder": existing.Holder.RunID,
			"pid":            existing.Holder.PID,
			"reason":         reason,
			"age_seconds":    m.age(existing).Seconds(),
		})
		if err := m.removeStale(existing); err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return fmt.Errorf("%w: stale lease of %s belongs to another user; run 'gpuwatch unlock' as that user",
					ErrLocked, existing.Holder.String())
			}
			return fmt.Errorf("failed to clear stale lock: %w", err)
		}
	}

	return fmt.Errorf("%w: lease changed hands while acquiring", ErrLocked)
}

// removeStale removes the lease file only if it still records stale.
func (m *Manager) removeStale(stale *LockInfo) error {
	current, err := m.loadLock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.Holder.RunID != stale.Holder.RunID || !current.SinceTS.Equal(stale.SinceTS) {
		// Someone else already replaced it.
		return nil
	}
	return m.removeLock()
}

// Release removes the lease if runID holds it.
func (m *Manager) Release(runID string) error {
	existing, err := m.loadLock()
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Debug("gpu.lock.release.no_lock", "No GPU lease to release", map[string]interface{}{
				"run_id": runID,
			})
			return nil
		}
		return fmt.Errorf("failed to read existing lock: %w", err)
	}

	if existing.Holder.RunID != runID {
		return fmt.Errorf("cannot release lock: held by %s, not run %s", existing.Holder.String(), runID)
	}

	if err := m.removeLock(); err != nil {
		return err
	}

	m.logger.Info("gpu.lock.released", "GPU lease released", map[string]interface{}{
		"run_id": runID,
	})

	return nil
}

// ForceUnlock removes the lease regardless of holder and returns the holder
// it removed, or nil if there was none.
func (m *Manager) ForceUnlock() (*LockInfo, error) {
	existing, err := m.loadLock()
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Info("gpu.lock.force_unlock.no_lock", "No GPU lease to force unlock", nil)
			return nil, nil
		}
		// A corrupt lease file is removed all the same.
		m.logger.Warn("gpu.lock.corrupt", "Removing unreadable GPU lease", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, m.removeLock()
	}

	m.logger.Warn("gpu.lock.stolen", "GPU lease forcibly removed", map[string]interface{}{
		"previous_holder": existing.Holder.RunID,
		"pid":             existing.Holder.PID,
		"age_seconds":     m.age(existing).Seconds(),
	})

	return existing, m.removeLock()
}

// GetStatus returns the current lease, or nil when the lease is free.
func (m *Manager) GetStatus() (*LockInfo, error) {
	lock, err := m.loadLock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lock: %w", err)
	}
	return lock, nil
}

// IsLocked reports whether a live run holds the lease.
func (m *Manager) IsLocked() (bool, error) {
	status, err := m.GetStatus()
	if errors.Is(err, fs.ErrPermission) {
		return true, nil
	}
	if err != nil || status == nil {
		return false, err
	}

	if reason := m.staleReason(status); reason != "" {
		m.logger.Warn("gpu.lock.stale_on_check", "Stale lease detected during check", map[string]interface{}{
			"holder": status.Holder.RunID,
			"reason": reason,
		})
		return false, nil
	}

	return true, nil
}

// staleReason returns why lock no longer protects anything, or "".
func (m *Manager) staleReason(lock *LockInfo) string {
	if !m.alive(lock.Holder.PID) {
		return "holder process exited"
	}
	if m.leaseTimeout > 0 && m.age(lock) > m.leaseTimeout {
		return "lease timeout exceeded"
	}
	return ""
}

func (m *Manager) age(lock *LockInfo) time.Duration {
	return m.now().Sub(lock.SinceTS)
}

func (m *Manager) loadLock() (*LockInfo, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		return nil, err
	}

	var lock LockInfo
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock: %w", err)
	}

	return &lock, nil
}

func (m *Manager) removeLock() error {
	if err := os.Remove(m.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}
