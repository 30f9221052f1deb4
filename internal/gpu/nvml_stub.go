//go:build !cuda

package gpu

// NVMLInterface is a placeholder for builds without the cuda tag.
type NVMLInterface interface{}

// DeviceInterface is a placeholder for builds without the cuda tag.
type DeviceInterface interface{}

// NewRealNVML returns nil; NVML is not linked without the cuda tag.
func NewRealNVML() NVMLInterface {
	return nil
}
