// Package monitor runs a workload next to a telemetry sampler and reduces
// the sampler's output once the workload exits.
package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gpuwatch/internal/aggregate"
	"gpuwatch/internal/logging"
	"gpuwatch/internal/proc"
	"gpuwatch/internal/sampling"
)

// Monitor coordinates the workload and sampler processes.
type Monitor struct {
	logger   *logging.Logger
	starter  proc.Starter
	now      func() time.Time
	lookPath func(string) (string, error)
	newRunID func() string
}

// New creates a Monitor that launches real processes.
func New(logger *logging.Logger) *Monitor {
	return NewWithStarter(proc.ExecStarter{}, logger)
}

// NewWithStarter creates a Monitor with a custom process starter (for testing)
func NewWithStarter(starter proc.Starter, logger *logging.Logger) *Monitor {
	return &Monitor{
		logger:   logger,
		starter:  starter,
		now:      time.Now,
		lookPath: exec.LookPath,
		newRunID: uuid.NewString,
	}
}

// Run profiles opts.Workload. It returns either a Result or an error, never
// both; every fatal outcome is a *RunError.
//
// Cancelling ctx terminates the workload but still stops and drains the
// sampler, and the run is reported with Interrupted set.
func (m *Monitor) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, runError(CodeConfig, "invalid options", err)
	}

	samplerPath, err := m.lookPath(opts.SamplerBinary)
	if err != nil {
		return nil, runError(CodeConfig, fmt.Sprintf("sampler %q not found", opts.SamplerBinary), err)
	}

	agg, err := aggregate.New(opts.Spec)
	if err != nil {
		return nil, runError(CodeConfig, "invalid metric spec", err)
	}

	runID := opts.RunID
	if runID == "" {
		runID = m.newRunID()
	}
	log := m.logger.With(map[string]interface{}{"run_id": runID})

	timing := RunTiming{StartupDelay: opts.StartupDelay, Start: m.now()}

	workload, err := m.starter.Start(proc.Spec{Name: opts.Workload[0], Args: opts.Workload[1:]})
	if err != nil {
		return nil, runError(CodeWorkloadStart, fmt.Sprintf("failed to start %q", opts.Workload[0]), err)
	}
	log.Info("monitor.workload.started", "Workload started", map[string]interface{}{
		"command": strings.Join(opts.Workload, " "),
		"pid":     workload.Pid(),
	})

	interrupted := m.waitDelay(ctx, opts.StartupDelay, workload)

	var sampler *samplerRun
	if !interrupted && !exited(workload) {
		args := sampling.QueryArgs(opts.Spec, opts.Interval)
		handle, err := m.starter.Start(proc.Spec{Name: samplerPath, Args: args, Capture: true, Isolate: true})
		if err != nil {
			m.terminateWorkload(log, workload, opts.KillGrace)
			return nil, runError(CodeSamplerStart, fmt.Sprintf("failed to start sampler %q", samplerPath), err)
		}
		log.Info("monitor.sampler.started", "Sampler started", map[string]interface{}{
			"pid":         handle.Pid(),
			"interval_ms": opts.Interval.Milliseconds(),
		})
		sampler = &samplerRun{handle: handle, logger: log}
	}
	// The sampler must never outlive Run, whatever path returns.
	defer sampler.stop()

	if !interrupted {
		interrupted = awaitExit(ctx, workload)
	}
	if interrupted {
		log.Warn("monitor.interrupted", "Run interrupted, terminating workload", nil)
		m.terminateWorkload(log, workload, opts.KillGrace)
	}
	timing.End = m.now()

	exitCode := workload.ExitCode()
	log.Info("monitor.workload.exited", "Workload exited", map[string]interface{}{
		"exit_code":   exitCode,
		"interrupted": interrupted,
	})

	stdout, stderr := sampler.stop()

	elapsed := timing.Elapsed()
	if elapsed < MinRunDuration {
		return nil, runError(CodeShortRun, fmt.Sprintf(
			"workload ran for %.2fs after the startup delay; executions under %s can not be profiled",
			elapsed.Seconds(), MinRunDuration), nil)
	}

	validity := ValidityOK
	if elapsed < AccurateRunDuration {
		validity = ValidityInaccurate
		log.Warn("monitor.run.inaccurate", "Short run may lead to inaccurate results", map[string]interface{}{
			"elapsed_seconds": elapsed.Seconds(),
		})
	}
	if interrupted {
		validity = ValidityInterrupted
	}

	if len(stderr) > 0 {
		return nil, runError(CodeSamplerFailure,
			"sampler returned errors:\n\t"+strings.TrimSpace(string(stderr)), nil)
	}

	if len(stdout) == 0 {
		return nil, runError(CodeEmptyOutput, "sampler returned no data", nil)
	}

	rows, err := sampling.ParseOutput(bytes.NewReader(stdout), opts.Spec, agg.Fold)
	if err != nil {
		if errors.Is(err, sampling.ErrSchemaMismatch) {
			return nil, runError(CodeSchemaMismatch, "sampler output does not match the requested fields", err)
		}
		return nil, runError(CodeEmptyOutput, "failed to read sampler output", err)
	}

	stats := agg.Stats()
	summary, err := aggregate.Finalize(stats)
	if err != nil {
		return nil, runError(CodeEmptyOutput, "sampler returned no data", err)
	}

	log.Info("monitor.run.completed", "Run aggregated", map[string]interface{}{
		"rows":            rows,
		"elapsed_seconds": elapsed.Seconds(),
		"validity":        string(validity),
	})

	return &Result{
		RunID:            runID,
		Command:          append([]string(nil), opts.Workload...),
		Stats:            stats,
		Summary:          summary,
		Timing:           timing,
		Validity:         validity,
		Interrupted:      interrupted,
		WorkloadExitCode: exitCode,
	}, nil
}

// waitDelay sleeps for the startup delay. It returns early when the workload
// exits, and reports true when ctx was cancelled first.
func (m *Monitor) waitDelay(ctx context.Context, delay time.Duration, workload proc.Handle) bool {
	if delay <= 0 {
		return ctx.Err() != nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return false
	case <-workload.Done():
		return false
	case <-ctx.Done():
		return true
	}
}

// awaitExit blocks until the workload exits (false) or ctx is cancelled (true).
func awaitExit(ctx context.Context, workload proc.Handle) bool {
	select {
	case <-workload.Done():
		return false
	case <-ctx.Done():
		return !exited(workload)
	}
}

// terminateWorkload asks the workload to stop, escalating to SIGKILL after
// grace. It returns once the workload has exited.
func (m *Monitor) terminateWorkload(log *logging.Logger, workload proc.Handle, grace time.Duration) {
	if err := workload.Terminate(); err != nil {
		log.Warn("monitor.workload.terminate_failed", "Failed to terminate workload", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if grace <= 0 {
		_ = workload.Wait()
		return
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-workload.Done():
	case <-timer.C:
		log.Warn("monitor.workload.kill", "Workload ignored SIGTERM, killing", map[string]interface{}{
			"grace": grace.String(),
		})
		if err := workload.Kill(); err != nil {
			log.Error("monitor.workload.kill_failed", "Failed to kill workload", map[string]interface{}{
				"error": err.Error(),
			})
		}
		_ = workload.Wait()
	}
}

func exited(h proc.Handle) bool {
	select {
	case <-h.Done():
		return true
	default:
		return false
	}
}

// samplerRun stops the sampler exactly once and keeps its drained output.
// A nil *samplerRun means the sampler was never started.
type samplerRun struct {
	handle proc.Handle
	logger *logging.Logger
	once   sync.Once
	stdout []byte
	stderr []byte
}

func (s *samplerRun) stop() (stdout, stderr []byte) {
	if s == nil {
		return nil, nil
	}
	s.once.Do(func() {
		if err := s.handle.Interrupt(); err != nil {
			s.logger.Warn("monitor.sampler.interrupt_failed", "Failed to interrupt sampler", map[string]interface{}{
				"error": err.Error(),
			})
		}
		// nvidia-smi exits non-zero on SIGINT; only its stderr is meaningful.
		if err := s.handle.Wait(); err != nil {
			s.logger.Debug("monitor.sampler.exit", "Sampler exited", map[string]interface{}{
				"error": err.Error(),
			})
		}
		s.stdout, s.stderr = s.handle.Output()
		s.logger.Info("monitor.sampler.stopped", "Sampler stopped and drained", map[string]interface{}{
			"stdout_bytes": len(s.stdout),
			"stderr_bytes": len(s.stderr),
		})
	})
	return s.stdout, s.stderr
}

func (o Options) validate() error {
	var problems []string
	if len(o.Workload) == 0 || strings.TrimSpace(o.Workload[0]) == "" {
		problems = append(problems, "workload command is empty")
	}
	if o.Interval < time.Millisecond {
		problems = append(problems, fmt.Sprintf("sampling interval must be at least 1ms, got %s", o.Interval))
	}
	if o.StartupDelay < 0 {
		problems = append(problems, fmt.Sprintf("startup delay must be non-negative, got %s", o.StartupDelay))
	}
	if o.KillGrace < 0 {
		problems = append(problems, fmt.Sprintf("kill grace must be non-negative, got %s", o.KillGrace))
	}
	if strings.TrimSpace(o.SamplerBinary) == "" {
		problems = append(problems, "sampler binary is empty")
	}
	if len(o.Spec) == 0 {
		problems = append(problems, "metric spec is empty")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
