//go:build cuda

package gpu

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"gpuwatch/internal/logging"
)

const (
	mockDriverVersion = "535.104.05"
)

func twoDeviceNVML() *MockNVML {
	mockNVML := NewMockNVML()
	mockNVML.DriverVersion = mockDriverVersion
	mockNVML.CudaVersion = 12020 // CUDA 12.2
	mockNVML.DeviceCount = 2
	mockNVML.Devices = []MockDevice{
		{
			Name:             "NVIDIA GeForce RTX 4090",
			NameReturn:       nvml.SUCCESS,
			UUID:             "GPU-12345678-1234-1234-1234-123456789012",
			UUIDReturn:       nvml.SUCCESS,
			MemoryTotal:      24 * 1024 * 1024 * 1024, // 24GB
			MemoryInfoReturn: nvml.SUCCESS,
		},
		{
			Name:             "NVIDIA A100-SXM4-40GB",
			NameReturn:       nvml.SUCCESS,
			UUID:             "GPU-87654321-4321-4321-4321-210987654321",
			UUIDReturn:       nvml.SUCCESS,
			MemoryTotal:      40 * 1024 * 1024 * 1024,
			MemoryInfoReturn: nvml.SUCCESS,
		},
	}
	return mockNVML
}

func TestDetector_Probe_Success(t *testing.T) {
	logger := logging.NewLogger(logging.LevelError)
	mockNVML := twoDeviceNVML()

	report := NewDetectorWithNVML(mockNVML, logger).Probe(1)

	if !report.NVMLOk {
		t.Error("Expected NVML to be OK")
	}
	if report.DriverVersion != mockDriverVersion {
		t.Errorf("Expected driver version %s, got: %s", mockDriverVersion, report.DriverVersion)
	}
	if report.CUDAVersion != "12.2" {
		t.Errorf("Expected CUDA version 12.2, got: %s", report.CUDAVersion)
	}
	if report.DeviceCount != 2 {
		t.Errorf("Expected 2 devices, got: %d", report.DeviceCount)
	}
	if report.Device == nil {
		t.Fatal("Expected device info")
	}
	if report.Device.Name != "NVIDIA A100-SXM4-40GB" {
		t.Errorf("Unexpected device name: %s", report.Device.Name)
	}
	if report.Device.MemoryTotalMiB != 40*1024 {
		t.Errorf("Expected 40960 MiB, got: %d", report.Device.MemoryTotalMiB)
	}
	if mockNVML.ShutdownCalls != 1 {
		t.Errorf("Expected NVML shutdown once, got %d", mockNVML.ShutdownCalls)
	}
}

func TestDetector_Probe_InitFailed(t *testing.T) {
	mockNVML := NewMockNVML()
	mockNVML.InitReturn = nvml.ERROR_LIBRARY_NOT_FOUND

	report := NewDetectorWithNVML(mockNVML, logging.NewLogger(logging.LevelError)).Probe(0)

	if report.NVMLOk {
		t.Error("Expected NVML to be not OK when init fails")
	}
	if report.ErrorMessage == "" {
		t.Error("Expected error message when NVML init fails")
	}
	if report.Device != nil {
		t.Error("Expected no device when NVML init fails")
	}
	if mockNVML.ShutdownCalls != 0 {
		t.Error("Shutdown must not be called after a failed init")
	}
}

func TestDetector_Probe_IndexOutOfRange(t *testing.T) {
	report := NewDetectorWithNVML(twoDeviceNVML(), logging.NewLogger(logging.LevelError)).Probe(5)

	if !report.NVMLOk {
		t.Error("Expected NVML to be OK")
	}
	if report.Device != nil {
		t.Error("Expected no device for an invalid index")
	}
	if !strings.Contains(report.ErrorMessage, "out of range") {
		t.Errorf("Unexpected error message: %s", report.ErrorMessage)
	}
}

func TestDetector_Probe_DeviceCountFailed(t *testing.T) {
	mockNVML := NewMockNVML()
	mockNVML.DeviceCountReturn = nvml.ERROR_UNKNOWN

	report := NewDetectorWithNVML(mockNVML, logging.NewLogger(logging.LevelError)).Probe(0)

	if !report.NVMLOk {
		t.Error("Expected NVML to be OK (init succeeded)")
	}
	if report.ErrorMessage == "" {
		t.Error("Expected error message when device count fails")
	}
}

func TestDetector_Probe_PartialDeviceInfo(t *testing.T) {
	mockNVML := twoDeviceNVML()
	mockNVML.Devices[0].MemoryInfoReturn = nvml.ERROR_NOT_SUPPORTED

	report := NewDetectorWithNVML(mockNVML, logging.NewLogger(logging.LevelError)).Probe(0)

	if report.Device == nil || report.Device.Name == "" {
		t.Fatal("Expected name despite memory failure")
	}
	if _, ok := report.TotalMemoryMiB(); ok {
		t.Error("Unknown memory must not be reported")
	}
}

func TestDetector_SaveReport(t *testing.T) {
	detector := NewDetectorWithNVML(twoDeviceNVML(), logging.NewLogger(logging.LevelError))
	report := detector.Probe(0)

	path := filepath.Join(t.TempDir(), "gpu_report.json")
	if err := detector.SaveReport(report, path); err != nil {
		t.Fatalf("Expected no error saving report, got: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read report file: %v", err)
	}

	var decoded DeviceReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Report is not valid JSON: %v", err)
	}
	if decoded.Device == nil || decoded.Device.UUID != report.Device.UUID {
		t.Errorf("Unexpected decoded report: %+v", decoded)
	}
}
