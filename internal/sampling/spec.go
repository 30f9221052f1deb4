// Package sampling decodes the CSV rows emitted by the telemetry sampler.
package sampling

import (
	"fmt"
	"strings"
	"time"
)

// Decoder selects how a raw CSV field becomes a Value.
type Decoder int

const (
	// DecodeNumber tries an integer parse, then a float parse.
	DecodeNumber Decoder = iota
	// DecodeBoolean maps the sentinel "Enabled" to true and anything else to false.
	DecodeBoolean
)

func (d Decoder) String() string {
	switch d {
	case DecodeNumber:
		return "number"
	case DecodeBoolean:
		return "boolean"
	default:
		return fmt.Sprintf("decoder(%d)", int(d))
	}
}

// Field names understood by nvidia-smi --query-gpu.
const (
	FieldMemoryReserved  = "memory.reserved"
	FieldMemoryUsed      = "memory.used"
	FieldMemoryFree      = "memory.free"
	FieldTemperatureGPU  = "temperature.gpu"
	FieldTemperatureMem  = "temperature.memory"
	FieldPowerManagement = "power.management"
	FieldPowerDraw       = "power.draw"
	FieldClockSM         = "clocks.current.sm"
	FieldClockMemory     = "clocks.current.memory"
)

// Field is one requested telemetry column.
type Field struct {
	Name        string
	Decoder     Decoder
	Unit        string
	Description string
}

// MetricSpec is the ordered list of requested fields. The order must match
// the column order the sampler emits, which is the order of --query-gpu.
type MetricSpec []Field

// DefaultSpec returns the field catalog queried from nvidia-smi.
func DefaultSpec() MetricSpec {
	return MetricSpec{
		{Name: FieldMemoryReserved, Decoder: DecodeNumber, Unit: "MiB", Description: "Memory reserved by the driver and firmware"},
		{Name: FieldMemoryUsed, Decoder: DecodeNumber, Unit: "MiB", Description: "Memory allocated by active contexts"},
		{Name: FieldMemoryFree, Decoder: DecodeNumber, Unit: "MiB", Description: "Total free memory"},
		{Name: FieldTemperatureGPU, Decoder: DecodeNumber, Unit: "C", Description: "Core GPU temperature"},
		{Name: FieldTemperatureMem, Decoder: DecodeNumber, Unit: "C", Description: "HBM memory temperature"},
		{Name: FieldPowerManagement, Decoder: DecodeBoolean, Description: "Whether power management is enabled"},
		{Name: FieldPowerDraw, Decoder: DecodeNumber, Unit: "W", Description: "Last measured board power draw (+/- 5W)"},
		{Name: FieldClockSM, Decoder: DecodeNumber, Unit: "MHz", Description: "Current SM clock"},
		{Name: FieldClockMemory, Decoder: DecodeNumber, Unit: "MHz", Description: "Current memory clock"},
	}
}

// Names returns the field names in order.
func (s MetricSpec) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Index returns the column of name, or -1.
func (s MetricSpec) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// QueryArgs builds the nvidia-smi arguments that poll spec every interval,
// emitting header-less CSV without units until interrupted.
func QueryArgs(spec MetricSpec, interval time.Duration) []string {
	return []string{
		"--format=csv,noheader,nounits",
		"--query-gpu=" + strings.Join(spec.Names(), ","),
		fmt.Sprintf("--loop-ms=%d", interval.Milliseconds()),
	}
}
