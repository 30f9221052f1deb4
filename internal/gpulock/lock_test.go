package gpulock

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gpuwatch/internal/logging"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), logging.NewLoggerWithWriter(logging.LevelError, io.Discard))
}

func holder(runID string) Holder {
	return Holder{RunID: runID, PID: os.Getpid(), Command: []string{"python", "train.py"}}
}

func TestNewManager(t *testing.T) {
	manager := NewManager("/tmp/gpuwatch-state", nil)

	if manager.stateDir != "/tmp/gpuwatch-state" {
		t.Errorf("Expected stateDir '/tmp/gpuwatch-state', got: %s", manager.stateDir)
	}
	if manager.leaseTimeout != 0 {
		t.Errorf("Expected no lease timeout by default, got: %v", manager.leaseTimeout)
	}
	if manager.Path() != filepath.Join("/tmp/gpuwatch-state", LockFileName) {
		t.Errorf("Unexpected lock path: %s", manager.Path())
	}
}

func TestAcquire_Success(t *testing.T) {
	manager := newTestManager(t)

	if err := manager.Acquire(holder("run-a")); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if _, err := os.Stat(manager.Path()); os.IsNotExist(err) {
		t.Error("Lock file was not created")
	}

	status, err := manager.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status == nil || status.Holder.RunID != "run-a" {
		t.Errorf("Expected holder run-a, got: %+v", status)
	}
	if status.Holder.PID != os.Getpid() {
		t.Errorf("Expected holder pid %d, got: %d", os.Getpid(), status.Holder.PID)
	}
}

func TestAcquire_SharedPermissions(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "gpuwatch")
	manager := NewManager(stateDir, logging.NewLoggerWithWriter(logging.LevelError, io.Discard))

	if err := manager.Acquire(holder("run-a")); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	dirInfo, err := os.Stat(stateDir)
	if err != nil {
		t.Fatal(err)
	}
	if dirInfo.Mode()&os.ModeSticky == 0 || dirInfo.Mode().Perm() != 0o777 {
		t.Errorf("State dir mode = %v, want sticky and world-writable", dirInfo.Mode())
	}

	fileInfo, err := os.Stat(manager.Path())
	if err != nil {
		t.Fatal(err)
	}
	if fileInfo.Mode().Perm() != 0o644 {
		t.Errorf("Lease file mode = %v, want 0644", fileInfo.Mode().Perm())
	}
}

func TestAcquire_UnreadableLease(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	manager := newTestManager(t)

	if err := os.WriteFile(manager.Path(), []byte(`{"holder":{"run_id":"other","pid":1}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(manager.Path(), 0); err != nil {
		t.Fatal(err)
	}

	err := manager.Acquire(holder("run-a"))
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("Expected ErrLocked for a lease owned by another user, got: %v", err)
	}

	locked, err := manager.IsLocked()
	if err != nil || !locked {
		t.Errorf("IsLocked() = %v, %v; want true", locked, err)
	}
}

func TestAcquire_Concurrent(t *testing.T) {
	manager := newTestManager(t)

	const runs = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := manager.Acquire(holder(id))
			if err == nil {
				mu.Lock()
				winners = append(winners, id)
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrLocked) {
				t.Errorf("Acquire(%s) unexpected error: %v", id, err)
			}
		}(fmt.Sprintf("run-%d", i))
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("Expected exactly one run to hold the lease, got: %v", winners)
	}
	status, err := manager.GetStatus()
	if err != nil {
		t.Fatal(err)
	}
	if status.Holder.RunID != winners[0] {
		t.Errorf("Lease records %s, winner was %s", status.Holder.RunID, winners[0])
	}
}

func TestAcquire_InvalidHolder(t *testing.T) {
	manager := newTestManager(t)

	tests := []Holder{
		{RunID: "", PID: 1},
		{RunID: "run-a", PID: 0},
	}
	for _, h := range tests {
		if err := manager.Acquire(h); err == nil {
			t.Errorf("Expected error for holder %+v", h)
		}
	}
}

func TestAcquire_AlreadyHeld(t *testing.T) {
	manager := newTestManager(t)

	if err := manager.Acquire(holder("run-a")); err != nil {
		t.Fatal(err)
	}
	if err := manager.Acquire(holder("run-a")); err != nil {
		t.Errorf("Expected no error when same run acquires again, got: %v", err)
	}
}

func TestAcquire_ConflictingHolder(t *testing.T) {
	manager := newTestManager(t)

	if err := manager.Acquire(holder("run-a")); err != nil {
		t.Fatal(err)
	}

	err := manager.Acquire(holder("run-b"))
	if !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked, got: %v", err)
	}

	locked, err := manager.IsLocked()
	if err != nil || !locked {
		t.Errorf("IsLocked() = %v, %v; want true", locked, err)
	}
}

func TestAcquire_DeadHolder(t *testing.T) {
	manager := newTestManager(t)

	if err := manager.Acquire(Holder{RunID: "run-a", PID: 424242}); err != nil {
		t.Fatal(err)
	}

	manager.alive = func(pid int) bool { return pid != 424242 }

	if locked, _ := manager.IsLocked(); locked {
		t.Error("A lease held by a dead process must not count as locked")
	}
	if err := manager.Acquire(holder("run-b")); err != nil {
		t.Fatalf("Expected dead holder's lease to be cleared, got: %v", err)
	}

	status, err := manager.GetStatus()
	if err != nil {
		t.Fatal(err)
	}
	if status.Holder.RunID != "run-b" {
		t.Errorf("Expected run-b after stale lease, got: %s", status.Holder.RunID)
	}
}

func TestAcquire_LeaseTimeout(t *testing.T) {
	manager := newTestManager(t)
	manager.SetLeaseTimeout(time.Minute)

	if err := manager.Acquire(holder("run-a")); err != nil {
		t.Fatal(err)
	}

	if err := manager.Acquire(holder("run-b")); !errors.Is(err, ErrLocked) {
		t.Fatalf("Expected ErrLocked within the lease, got: %v", err)
	}

	start := time.Now()
	manager.now = func() time.Time { return start.Add(2 * time.Minute) }

	if err := manager.Acquire(holder("run-b")); err != nil {
		t.Errorf("Expected expired lease to be cleared, got: %v", err)
	}
}

func TestRelease(t *testing.T) {
	manager := newTestManager(t)

	if err := manager.Acquire(holder("run-a")); err != nil {
		t.Fatal(err)
	}

	if err := manager.Release("run-b"); err == nil {
		t.Error("Expected error when another run releases the lease")
	}

	if err := manager.Release("run-a"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	status, err := manager.GetStatus()
	if err != nil {
		t.Fatal(err)
	}
	if status != nil {
		t.Errorf("Expected free lease after release, got: %+v", status)
	}
}

func TestRelease_NoLock(t *testing.T) {
	manager := newTestManager(t)

	if err := manager.Release("run-a"); err != nil {
		t.Errorf("Expected no error when releasing non-existent lock, got: %v", err)
	}
}

func TestForceUnlock(t *testing.T) {
	manager := newTestManager(t)

	if err := manager.Acquire(holder("run-a")); err != nil {
		t.Fatal(err)
	}

	previous, err := manager.ForceUnlock()
	if err != nil {
		t.Fatalf("ForceUnlock failed: %v", err)
	}
	if previous == nil || previous.Holder.RunID != "run-a" {
		t.Errorf("Expected previous holder run-a, got: %+v", previous)
	}

	if locked, _ := manager.IsLocked(); locked {
		t.Error("Expected lease to be free after force unlock")
	}

	previous, err = manager.ForceUnlock()
	if err != nil || previous != nil {
		t.Errorf("ForceUnlock on free lease = %+v, %v", previous, err)
	}
}

func TestForceUnlock_CorruptFile(t *testing.T) {
	manager := newTestManager(t)

	if err := os.WriteFile(manager.Path(), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := manager.Acquire(holder("run-a")); err == nil {
		t.Error("Acquire must not overwrite an unreadable lease")
	}

	if _, err := manager.ForceUnlock(); err != nil {
		t.Fatalf("ForceUnlock failed: %v", err)
	}
	if _, err := os.Stat(manager.Path()); !os.IsNotExist(err) {
		t.Error("Expected corrupt lease file to be removed")
	}
}

func TestHolder_String(t *testing.T) {
	h := Holder{RunID: "abc", PID: 1, Command: []string{"python", "train.py"}}
	if got := h.String(); got != "run abc (python train.py)" {
		t.Errorf("String() = %q", got)
	}
	if got := (Holder{RunID: "abc"}).String(); got != "run abc" {
		t.Errorf("String() = %q", got)
	}
}
