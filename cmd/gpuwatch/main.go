package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

const version = "0.1.0-dev"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

type commandFunc func(args []string, stdout, stderr io.Writer) int

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches to a subcommand, or profiles a workload when args[0] is not
// a known subcommand.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitConfig
	}

	if handler, ok := commandHandlers()[strings.ToLower(args[0])]; ok {
		return handler(args[1:], stdout, stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runProfile(ctx, args, stdout, stderr)
}

func commandHandlers() map[string]commandFunc {
	return map[string]commandFunc{
		"gpu-check": runGPUCheck,
		"unlock":    runUnlock,
		"fields":    runFields,
		"version":   runVersion,
		"help":      runHelp,
		"--help":    runHelp,
		"-h":        runHelp,
	}
}

func runVersion(_ []string, stdout, _ io.Writer) int {
	fmt.Fprintf(stdout, "gpuwatch version %s\n", version)
	return exitOK
}

func runHelp(_ []string, stdout, _ io.Writer) int {
	printUsage(stdout)
	return exitOK
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `gpuwatch - GPU usage profiler for a single command (version %s)

Usage:
  gpuwatch [flags] -c "<command>"      Profile a command given as one string
  gpuwatch [flags] -- <command> [args] Profile a command given as argv
  gpuwatch gpu-check [-gpu N] [-json path]  Probe the GPU through NVML
  gpuwatch unlock [-yes]               Force release a stuck profiling lease
  gpuwatch fields                      List the sampled nvidia-smi fields
  gpuwatch version                     Print version information
  gpuwatch help                        Show this help message

Flags:
  -c, -command string            Command to execute (split on whitespace)
  -s, -sampling-interval int     Sampling interval, in milliseconds (default 500)
  -d, -delay int                 Delay (in seconds) before the sampling starts
  -sampler string                Sampler binary (default nvidia-smi)
  -gpu int                       GPU index probed for device identity (default 0)
  -config string                 Additional config file (YAML)
  -json string                   Write a JSON report to this path
  -color auto|always|never       Colorize the summary (default auto)
  -log-level debug|info|warn|error
  -log-file string               Write JSON logs to a file instead of stderr
  -no-lock                       Do not take the profiling lease

Configuration is read from $GPUWATCH_CONFIG_DIR/config.yaml (default /etc/gpuwatch),
then ~/.gpuwatch/config.yaml, then -config. Flags override all files.

Exit codes: 0 success, 1 run failed, 2 configuration error.
`, version)
}
