//go:build cuda

package gpu

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"gpuwatch/internal/logging"
)

// Detector reads device identity through NVML.
type Detector struct {
	nvml   NVMLInterface
	logger *logging.Logger
}

// NewDetector creates a new GPU detector
func NewDetector(logger *logging.Logger) *Detector {
	return &Detector{
		nvml:   NewRealNVML(),
		logger: logger,
	}
}

// NewDetectorWithNVML creates a detector with a custom NVML interface (for testing)
func NewDetectorWithNVML(nvmlInterface NVMLInterface, logger *logging.Logger) *Detector {
	return &Detector{
		nvml:   nvmlInterface,
		logger: logger,
	}
}

// Probe reads the identity of the device at index. Failures are reported in
// the DeviceReport rather than returned, since the probe only enriches the
// profiling report.
func (d *Detector) Probe(index int) DeviceReport {
	d.logger.Debug("gpu.probe.start", "Probing GPU", map[string]interface{}{
		"index": index,
	})

	var report DeviceReport

	ret := d.nvml.Init()
	if ret != nvml.SUCCESS {
		report.ErrorMessage = fmt.Sprintf("Failed to initialize NVML: %v", nvml.ErrorString(ret))
		d.logger.Warn("gpu.nvml.init.failed", "NVML initialization failed", map[string]interface{}{
			"error": report.ErrorMessage,
		})
		return report
	}
	defer d.nvml.Shutdown()

	report.NVMLOk = true

	driverVersion, ret := d.nvml.SystemGetDriverVersion()
	if ret != nvml.SUCCESS {
		d.logger.Warn("gpu.driver.version.failed", "Failed to get driver version", map[string]interface{}{
			"error": nvml.ErrorString(ret),
		})
	} else {
		report.DriverVersion = driverVersion
	}

	cudaVersion, ret := d.nvml.SystemGetCudaDriverVersion()
	if ret != nvml.SUCCESS {
		d.logger.Warn("gpu.cuda.version.failed", "Failed to get CUDA version", map[string]interface{}{
			"error": nvml.ErrorString(ret),
		})
	} else {
		report.CUDAVersion = FormatCUDAVersion(cudaVersion)
	}

	count, ret := d.nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		report.ErrorMessage = fmt.Sprintf("Failed to get device count: %v", nvml.ErrorString(ret))
		d.logger.Error("gpu.device.count.failed", "Failed to get GPU count", map[string]interface{}{
			"error": report.ErrorMessage,
		})
		return report
	}
	report.DeviceCount = count

	if index < 0 || index >= count {
		report.ErrorMessage = fmt.Sprintf("GPU index %d out of range (found %d devices)", index, count)
		d.logger.Warn("gpu.device.index.invalid", "GPU index out of range", map[string]interface{}{
			"index": index,
			"count": count,
		})
		return report
	}

	device, ret := d.nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		report.ErrorMessage = fmt.Sprintf("Failed to get device handle: %v", nvml.ErrorString(ret))
		d.logger.Warn("gpu.device.handle.failed", "Failed to get device handle", map[string]interface{}{
			"index": index,
			"error": nvml.ErrorString(ret),
		})
		return report
	}

	info := DeviceInfo{Index: index}

	if name, ret := device.GetName(); ret == nvml.SUCCESS {
		info.Name = name
	}
	if uuid, ret := device.GetUUID(); ret == nvml.SUCCESS {
		info.UUID = uuid
	}
	if memInfo, ret := device.GetMemoryInfo(); ret == nvml.SUCCESS {
		info.MemoryTotalMiB = memInfo.Total / (1024 * 1024)
	}

	report.Device = &info

	d.logger.Info("gpu.device.detected", "GPU device detected", map[string]interface{}{
		"index":            index,
		"name":             info.Name,
		"uuid":             info.UUID,
		"memory_total_mib": info.MemoryTotalMiB,
	})

	return report
}

// SaveReport saves the device report to a JSON file
func (d *Detector) SaveReport(report DeviceReport, path string) error {
	return saveReportToFile(d.logger, report, path)
}
