package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"gpuwatch/internal/config"
	"gpuwatch/internal/fsutil"
	"gpuwatch/internal/gpu"
	"gpuwatch/internal/gpulock"
	"gpuwatch/internal/logging"
	"gpuwatch/internal/monitor"
	"gpuwatch/internal/report"
	"gpuwatch/internal/sampling"
)

// runProfile profiles one workload and prints its summary.
func runProfile(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	pf, err := parseProfileFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}

	cfg, err := loadConfig(pf)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}

	logger, err := newLogger(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}
	defer fsutil.CloseWithError(logger.Close, nil, "log file")

	formatter, err := report.NewFormatter(stdout, cfg.Report.Color)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}
	renderer := report.NewRenderer(stdout, formatter)

	runID := uuid.NewString()

	if cfg.Lock.Enabled {
		release, err := acquireLease(cfg.Lock, logger, gpulock.Holder{
			RunID:   runID,
			PID:     os.Getpid(),
			Command: pf.workload,
		})
		if err != nil {
			renderer.Failure(err)
			return exitFailure
		}
		defer release()
	}

	device := gpu.NewDetector(logger).Probe(pf.gpuIndex)

	renderer.Banner(true)
	result, err := monitor.New(logger).Run(ctx, monitor.Options{
		RunID:         runID,
		Workload:      pf.workload,
		SamplerBinary: cfg.Sampler.Binary,
		Interval:      cfg.Sampler.Interval(),
		StartupDelay:  cfg.Sampler.StartupDelay(),
		Spec:          sampling.DefaultSpec(),
		KillGrace:     cfg.Workload.KillGrace(),
	})
	renderer.Banner(false)

	if err != nil {
		renderer.Failure(err)
		if errors.Is(err, monitor.ErrConfig) {
			return exitConfig
		}
		return exitFailure
	}

	renderer.Annotations(result)
	renderer.Summary(result, &device)

	if cfg.Report.JSONPath != "" {
		doc := report.NewDocument(result, &device)
		if err := doc.WriteJSON(cfg.Report.JSONPath, logger); err != nil {
			renderer.Failure(err)
			return exitFailure
		}
	}

	return exitOK
}

// loadConfig layers the config files, then the command line flags.
func loadConfig(pf *profileFlags) (config.Config, error) {
	cfg, err := config.Read(pf.configPath)
	if err != nil {
		return cfg, err
	}
	pf.apply(&cfg)
	return cfg, config.Check(cfg)
}

func newLogger(cfg config.LoggingConfig, stderr io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.File != "" {
		return logging.NewFileLogger(level, cfg.File)
	}
	return logging.NewLoggerWithWriter(level, stderr), nil
}

// acquireLease takes the profiling lease and returns its release function.
func acquireLease(cfg config.LockConfig, logger *logging.Logger, holder gpulock.Holder) (func(), error) {
	manager := gpulock.NewManager(fsutil.GetStateDir(cfg.StateDir), logger)
	manager.SetLeaseTimeout(cfg.LeaseTimeout())

	if err := manager.Acquire(holder); err != nil {
		if errors.Is(err, gpulock.ErrLocked) {
			return nil, fmt.Errorf("%w (run 'gpuwatch unlock' if that run is gone, or pass -no-lock)", err)
		}
		return nil, err
	}

	return func() {
		if err := manager.Release(holder.RunID); err != nil {
			logger.Warn("gpu.lock.release_failed", "Failed to release GPU lease", map[string]interface{}{
				"run_id": holder.RunID,
				"error":  err.Error(),
			})
		}
	}, nil
}
