package gpulock

import (
	"errors"
	"strings"
	"time"
)

// ErrLocked is returned by Acquire when a live run holds the lease.
var ErrLocked = errors.New("GPU profiling lease is held by another run")

// Holder identifies the gpuwatch run that owns the lease.
type Holder struct {
	RunID   string   `json:"run_id"`
	PID     int      `json:"pid"`
	Command []string `json:"command,omitempty"`
}

// LockInfo is the content of the lease file.
type LockInfo struct {
	Holder  Holder    `json:"holder"`
	SinceTS time.Time `json:"since_ts"`
}

// String returns a short description for log and error messages.
func (h Holder) String() string {
	var b strings.Builder
	b.WriteString("run ")
	b.WriteString(h.RunID)
	if len(h.Command) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(h.Command, " "))
		b.WriteString(")")
	}
	return b.String()
}

// IsValid checks that the holder can be recorded and later matched.
func (h Holder) IsValid() bool {
	return strings.TrimSpace(h.RunID) != "" && h.PID > 0
}
