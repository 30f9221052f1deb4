package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"gpuwatch/internal/config"
)

// profileFlags holds the command line of a profiling run. Only flags that
// were set on the command line override the loaded configuration.
type profileFlags struct {
	command    string
	interval   int
	delay      int
	sampler    string
	gpuIndex   int
	configPath string
	jsonPath   string
	color      string
	logLevel   string
	logFile    string
	noLock     bool

	workload []string
	set      map[string]bool
}

func parseProfileFlags(args []string, stderr io.Writer) (*profileFlags, error) {
	pf := &profileFlags{set: make(map[string]bool)}

	fs := flag.NewFlagSet("gpuwatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }

	fs.StringVar(&pf.command, "c", "", "command to execute")
	fs.StringVar(&pf.command, "command", "", "command to execute")
	fs.IntVar(&pf.interval, "s", config.DefaultIntervalMs, "sampling interval in milliseconds")
	fs.IntVar(&pf.interval, "sampling-interval", config.DefaultIntervalMs, "sampling interval in milliseconds")
	fs.IntVar(&pf.delay, "d", 0, "delay in seconds before sampling starts")
	fs.IntVar(&pf.delay, "delay", 0, "delay in seconds before sampling starts")
	fs.StringVar(&pf.sampler, "sampler", config.DefaultSamplerBinary, "sampler binary")
	fs.IntVar(&pf.gpuIndex, "gpu", 0, "GPU index probed for device identity")
	fs.StringVar(&pf.configPath, "config", "", "additional config file")
	fs.StringVar(&pf.jsonPath, "json", "", "JSON report path")
	fs.StringVar(&pf.color, "color", config.ColorAuto, "auto, always or never")
	fs.StringVar(&pf.logLevel, "log-level", "", "log level")
	fs.StringVar(&pf.logFile, "log-file", "", "log file path")
	fs.BoolVar(&pf.noLock, "no-lock", false, "skip the profiling lease")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { pf.set[f.Name] = true })

	workload, err := resolveWorkload(pf.command, fs.Args())
	if err != nil {
		return nil, err
	}
	pf.workload = workload

	return pf, nil
}

// resolveWorkload accepts the command either as a -c string or as trailing
// arguments, never both.
func resolveWorkload(command string, rest []string) ([]string, error) {
	fromFlag := strings.Fields(command)
	switch {
	case len(fromFlag) > 0 && len(rest) > 0:
		return nil, fmt.Errorf("give the command either with -c or after --, not both (got %q and %q)",
			command, strings.Join(rest, " "))
	case len(fromFlag) > 0:
		return fromFlag, nil
	case len(rest) > 0:
		return rest, nil
	default:
		return nil, errors.New("no command to profile: use -c \"<command>\" or -- <command>")
	}
}

func (pf *profileFlags) isSet(names ...string) bool {
	for _, name := range names {
		if pf.set[name] {
			return true
		}
	}
	return false
}

// apply overlays the flags given on the command line onto cfg.
func (pf *profileFlags) apply(cfg *config.Config) {
	if pf.isSet("s", "sampling-interval") {
		cfg.Sampler.IntervalMs = pf.interval
	}
	if pf.isSet("d", "delay") {
		cfg.Sampler.StartupDelaySeconds = pf.delay
	}
	if pf.isSet("sampler") {
		cfg.Sampler.Binary = pf.sampler
	}
	if pf.isSet("json") {
		cfg.Report.JSONPath = pf.jsonPath
	}
	if pf.isSet("color") {
		cfg.Report.Color = pf.color
	}
	if pf.isSet("log-level") {
		cfg.Logging.Level = pf.logLevel
	}
	if pf.isSet("log-file") {
		cfg.Logging.File = pf.logFile
	}
	if pf.noLock {
		cfg.Lock.Enabled = false
	}
}
