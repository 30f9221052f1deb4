package gpu

import "fmt"

// DeviceInfo is the static identity of one GPU.
type DeviceInfo struct {
	Index          int    `json:"index"`
	Name           string `json:"name"`
	UUID           string `json:"uuid"`
	MemoryTotalMiB uint64 `json:"memory_total_mib"`
}

// DeviceReport is the result of probing one device through NVML.
// Device is nil when NVML or the device handle was unavailable.
type DeviceReport struct {
	NVMLOk        bool        `json:"nvml_ok"`
	DriverVersion string      `json:"driver_version,omitempty"`
	CUDAVersion   string      `json:"cuda_version,omitempty"`
	DeviceCount   int         `json:"device_count"`
	Device        *DeviceInfo `json:"device,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
}

// TotalMemoryMiB returns the device's memory size when it is known.
func (r DeviceReport) TotalMemoryMiB() (float64, bool) {
	if r.Device == nil || r.Device.MemoryTotalMiB == 0 {
		return 0, false
	}
	return float64(r.Device.MemoryTotalMiB), true
}

// FormatCUDAVersion renders NVML's packed CUDA driver version (e.g. 12020)
// as "12.2".
func FormatCUDAVersion(v int) string {
	if v <= 0 {
		return ""
	}
	return fmt.Sprintf("%d.%d", v/1000, (v%1000)/10)
}
