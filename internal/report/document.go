package report

import (
	"encoding/json"
	"fmt"
	"time"

	"gpuwatch/internal/aggregate"
	"gpuwatch/internal/fsutil"
	"gpuwatch/internal/gpu"
	"gpuwatch/internal/logging"
	"gpuwatch/internal/monitor"
)

// Document is the JSON form of one profiling run.
type Document struct {
	RunID               string            `json:"run_id"`
	Command             []string          `json:"command"`
	Start               time.Time         `json:"start"`
	End                 time.Time         `json:"end"`
	ElapsedSeconds      float64           `json:"elapsed_seconds"`
	StartupDelaySeconds float64           `json:"startup_delay_seconds"`
	Validity            monitor.Validity  `json:"validity"`
	Interrupted         bool              `json:"interrupted"`
	WorkloadExitCode    int               `json:"workload_exit_code"`
	Summary             aggregate.Summary `json:"summary"`
	Device              *gpu.DeviceReport `json:"device,omitempty"`
}

// NewDocument builds a Document from a successful run.
func NewDocument(result *monitor.Result, device *gpu.DeviceReport) Document {
	return Document{
		RunID:               result.RunID,
		Command:             result.Command,
		Start:               result.Timing.Start.UTC(),
		End:                 result.Timing.End.UTC(),
		ElapsedSeconds:      result.Timing.Elapsed().Seconds(),
		StartupDelaySeconds: result.Timing.StartupDelay.Seconds(),
		Validity:            result.Validity,
		Interrupted:         result.Interrupted,
		WorkloadExitCode:    result.WorkloadExitCode,
		Summary:             result.Summary,
		Device:              device,
	}
}

// WriteJSON writes the document to path atomically.
func (d Document) WriteJSON(path string, logger *logging.Logger) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := fsutil.AtomicWriteFile(path, data, fsutil.ReportFilePermissions, logger); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}

	if logger != nil {
		logger.Info("report.json.saved", "JSON report saved", map[string]interface{}{
			"path":   path,
			"run_id": d.RunID,
		})
	}
	return nil
}
