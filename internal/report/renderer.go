package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gpuwatch/internal/aggregate"
	"gpuwatch/internal/gpu"
	"gpuwatch/internal/monitor"
)

const (
	bannerStart = "--------------MONITORING-----------------------"
	bannerEnd   = "-----------------------------------------------"

	// InaccurateMessage is shown for runs shorter than monitor.AccurateRunDuration.
	InaccurateMessage = "executions <5s may lead to inaccurate results"
	// InterruptedMessage is shown when the workload was terminated by a signal.
	InterruptedMessage = "run interrupted; the workload was terminated before it finished"

	notAvailable = "n/a"
)

// Renderer writes human-readable report sections to an output.
type Renderer struct {
	w io.Writer
	f *Formatter
}

// NewRenderer creates a Renderer writing to w.
func NewRenderer(w io.Writer, f *Formatter) *Renderer {
	return &Renderer{w: w, f: f}
}

// Banner prints the rule that opens (start) or closes the monitored section.
func (r *Renderer) Banner(start bool) {
	line := bannerEnd
	if start {
		line = bannerStart
	}
	r.println(r.f.Render(StyleHeader, line))
}

// Warning prints a non-fatal notice.
func (r *Renderer) Warning(msg string) {
	r.println(r.f.Emphasize(StyleWarning, "WARNING") + r.f.Render(StyleWarning, ": "+msg))
}

// Failure prints a fatal error.
func (r *Renderer) Failure(err error) {
	r.println(r.f.Emphasize(StyleFail, "ERROR") + r.f.Render(StyleFail, ": "+err.Error()))
}

// Annotations prints the warnings attached to a successful result.
func (r *Renderer) Annotations(result *monitor.Result) {
	if result.Interrupted {
		r.Warning(InterruptedMessage)
	}
	if result.Timing.Elapsed() < monitor.AccurateRunDuration {
		r.Warning(InaccurateMessage)
	}
}

// Summary prints the aggregated metrics of result. device may be nil.
func (r *Renderer) Summary(result *monitor.Result, device *gpu.DeviceReport) {
	s := result.Summary

	r.println(r.f.Render(StyleBold, "SUMMARY"))

	if device != nil && device.Device != nil {
		r.section("Device")
		r.row("Name:", deviceName(device.Device))
		if device.DriverVersion != "" {
			r.row("Driver:", strings.TrimSpace(device.DriverVersion+" (CUDA "+orNA(device.CUDAVersion)+")"))
		}
	}

	r.section("Memory")
	r.row("Max memory used:", memoryLine(s.MaxMemoryMiB, device))

	r.section("Temperature")
	r.row("Max core GPU temperature:", withUnit(s.MaxTemperatureC, "ºC"))
	r.row("Min core GPU temperature:", withUnit(s.MinTemperatureC, "ºC"))

	r.section("Power")
	r.row("Max power:", watts(s.MaxPowerW))
	r.row("Min power:", watts(s.MinPowerW))
	r.row("Avg power:", watts(s.AvgPowerW))

	r.section("Clocks")
	r.row("Max SM clock:", withUnit(s.MaxClockSMMHz, "MHz"))
	r.row("Max memory clock:", withUnit(s.MaxClockMemoryMHz, "MHz"))

	r.section("Run")
	r.row("Samples:", strconv.Itoa(s.Samples))
	r.row("Elapsed:", fmt.Sprintf("%.2f s", result.Timing.Elapsed().Seconds()))
	r.row("Exit code:", exitCode(result.WorkloadExitCode))
	if len(s.Skipped) > 0 {
		r.row("Unparseable:", skippedLine(s.Skipped))
	}
}

func (r *Renderer) section(title string) {
	r.println("\t" + r.f.Render(StyleSection, title))
}

func (r *Renderer) row(label, value string) {
	r.println(fmt.Sprintf("\t%-26s%s", label, value))
}

func (r *Renderer) println(line string) {
	_, _ = fmt.Fprintln(r.w, line)
}

func deviceName(d *gpu.DeviceInfo) string {
	name := orNA(d.Name)
	if d.UUID != "" {
		name += " (" + d.UUID + ")"
	}
	return name
}

func memoryLine(maxMiB *float64, device *gpu.DeviceReport) string {
	if maxMiB == nil {
		return notAvailable
	}
	line := fmt.Sprintf("%s MiB (%.2f GiB)", number(*maxMiB), *maxMiB/1024)
	if device != nil {
		if total, ok := device.TotalMemoryMiB(); ok {
			line += fmt.Sprintf(" [%.1f%% of %s MiB]", *maxMiB/total*100, number(total))
		}
	}
	return line
}

func withUnit(v *float64, unit string) string {
	if v == nil {
		return notAvailable
	}
	return number(*v) + " " + unit
}

func watts(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return fmt.Sprintf("%.2f W", *v)
}

func exitCode(code int) string {
	if code < 0 {
		return "killed by signal"
	}
	return strconv.Itoa(code)
}

func skippedLine(skipped map[aggregate.Family]int) string {
	parts := make([]string, 0, len(skipped))
	for family, n := range skipped {
		parts = append(parts, fmt.Sprintf("%s=%d", family, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
