//go:build !cuda

package gpu

import "gpuwatch/internal/logging"

// Detector is a no-op probe for builds without NVML.
type Detector struct {
	logger *logging.Logger
}

// NewDetector creates a GPU detector that skips NVML when CUDA support is disabled.
func NewDetector(logger *logging.Logger) *Detector {
	return &Detector{logger: logger}
}

// NewDetectorWithNVML is provided for API compatibility; NVML is ignored when CUDA is disabled.
func NewDetectorWithNVML(_ NVMLInterface, logger *logging.Logger) *Detector {
	return NewDetector(logger)
}

// Probe reports that NVML is unavailable in the current build.
func (d *Detector) Probe(index int) DeviceReport {
	if d.logger != nil {
		d.logger.Debug("gpu.probe.disabled", "Skipping NVML probe (built without cuda tag)", map[string]interface{}{
			"index": index,
		})
	}

	return DeviceReport{
		NVMLOk:       false,
		ErrorMessage: "NVML disabled: rebuild with -tags cuda",
	}
}

// SaveReport persists a device report to disk.
func (d *Detector) SaveReport(report DeviceReport, path string) error {
	return saveReportToFile(d.logger, report, path)
}
