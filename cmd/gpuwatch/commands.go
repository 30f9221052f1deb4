package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gpuwatch/internal/config"
	"gpuwatch/internal/fsutil"
	"gpuwatch/internal/gpu"
	"gpuwatch/internal/gpulock"
	"gpuwatch/internal/logging"
	"gpuwatch/internal/sampling"
)

const confirmationYes = "yes"

// stdin is replaced in tests.
var stdin io.Reader = os.Stdin

func runGPUCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gpu-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	index := fs.Int("gpu", 0, "GPU index")
	jsonPath := fs.String("json", "", "save the report as JSON")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}

	logger := logging.NewLoggerWithWriter(logging.LevelWarn, stderr)
	detector := gpu.NewDetector(logger)
	report := detector.Probe(*index)

	fmt.Fprintln(stdout, "=== GPU Probe ===")
	if !report.NVMLOk {
		fmt.Fprintf(stdout, "❌ NVML Status: FAILED\n")
		fmt.Fprintf(stdout, "   Error: %s\n", report.ErrorMessage)
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "💡 Profiling still works as long as nvidia-smi runs; the summary omits device identity.")
	} else {
		fmt.Fprintf(stdout, "✓ NVML Status: OK\n")
		fmt.Fprintf(stdout, "  Driver Version: %s\n", report.DriverVersion)
		fmt.Fprintf(stdout, "  CUDA Version: %s\n", report.CUDAVersion)
		fmt.Fprintf(stdout, "  GPU Count: %d\n", report.DeviceCount)
		if report.Device != nil {
			fmt.Fprintf(stdout, "  GPU %d:\n", report.Device.Index)
			fmt.Fprintf(stdout, "    Name: %s\n", report.Device.Name)
			fmt.Fprintf(stdout, "    UUID: %s\n", report.Device.UUID)
			fmt.Fprintf(stdout, "    Memory: %d MiB\n", report.Device.MemoryTotalMiB)
		} else if report.ErrorMessage != "" {
			fmt.Fprintf(stdout, "   Error: %s\n", report.ErrorMessage)
		}
	}

	if *jsonPath != "" {
		if err := detector.SaveReport(report, *jsonPath); err != nil {
			fmt.Fprintf(stderr, "❌ Failed to save report: %v\n", err)
			return exitFailure
		}
		fmt.Fprintf(stdout, "\n✓ Report saved to %s\n", *jsonPath)
	}

	if !report.NVMLOk || report.Device == nil {
		return exitFailure
	}
	return exitOK
}

func runUnlock(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("unlock", flag.ContinueOnError)
	fs.SetOutput(stderr)
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	configPath := fs.String("config", "", "additional config file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}

	logger := logging.NewLoggerWithWriter(logging.LevelError, stderr)
	manager := gpulock.NewManager(fsutil.GetStateDir(cfg.Lock.StateDir), logger)

	status, err := manager.GetStatus()
	if err != nil {
		fmt.Fprintf(stderr, "❌ Failed to get GPU lease status: %v\n", err)
		if !*yes {
			return exitFailure
		}
	}

	if status == nil && err == nil {
		fmt.Fprintln(stdout, "GPU is not locked.")
		return exitOK
	}

	if status != nil {
		fmt.Fprintf(stdout, "Current lease holder: %s\n", status.Holder.String())
		fmt.Fprintf(stdout, "Holder PID: %d\n", status.Holder.PID)
		fmt.Fprintf(stdout, "Lease acquired: %s\n", status.SinceTS.Format(time.RFC3339))
		fmt.Fprintf(stdout, "Age: %s\n", time.Since(status.SinceTS).Round(time.Second))
		fmt.Fprintln(stdout)
	}

	if !*yes {
		fmt.Fprintln(stdout, "⚠️  Warning: a profiling run that is still active will lose its lease.")
		fmt.Fprint(stdout, "Are you sure you want to force unlock? (yes/no): ")

		response, readErr := bufio.NewReader(stdin).ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			fmt.Fprintf(stderr, "❌ Failed to read response: %v\n", readErr)
			return exitFailure
		}
		if strings.ToLower(strings.TrimSpace(response)) != confirmationYes {
			fmt.Fprintln(stdout, "Unlock cancelled.")
			return exitOK
		}
	}

	if _, err := manager.ForceUnlock(); err != nil {
		fmt.Fprintf(stderr, "❌ Failed to force unlock: %v\n", err)
		return exitFailure
	}

	fmt.Fprintln(stdout, "✓ GPU lease released.")
	return exitOK
}

func runFields(_ []string, stdout, _ io.Writer) int {
	fmt.Fprintf(stdout, "%-24s %-8s %-4s %s\n", "FIELD", "DECODER", "UNIT", "DESCRIPTION")
	for _, f := range sampling.DefaultSpec() {
		unit := f.Unit
		if unit == "" {
			unit = "-"
		}
		fmt.Fprintf(stdout, "%-24s %-8s %-4s %s\n", f.Name, f.Decoder, unit, f.Description)
	}
	return exitOK
}
