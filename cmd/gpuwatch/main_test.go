package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpuwatch/internal/config"
	"gpuwatch/internal/fsutil"
	"gpuwatch/internal/gpulock"
	"gpuwatch/internal/logging"
	"gpuwatch/internal/sampling"
)

// isolate keeps tests away from real config files and lease state.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("GPUWATCH_CONFIG_DIR", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	stateDir := t.TempDir()
	t.Setenv(fsutil.StateDirEnv, stateDir)
	return stateDir
}

func TestParseProfileFlags_Workload(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{name: "short flag", args: []string{"-c", "python train.py --epochs 3"}, want: []string{"python", "train.py", "--epochs", "3"}},
		{name: "long flag", args: []string{"-command", "./bench"}, want: []string{"./bench"}},
		{name: "argv after --", args: []string{"-s", "100", "--", "python", "-c", "print(1)"}, want: []string{"python", "-c", "print(1)"}},
		{name: "bare argv", args: []string{"sleep", "5"}, want: []string{"sleep", "5"}},
		{name: "both forms", args: []string{"-c", "a", "--", "b"}, wantErr: true},
		{name: "no command", args: []string{"-s", "100"}, wantErr: true},
		{name: "blank command", args: []string{"-c", "   "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pf, err := parseProfileFlags(tt.args, &bytes.Buffer{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, pf.workload)
		})
	}
}

func TestProfileFlags_ApplyOnlySetFlags(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sampler.IntervalMs = 250
	cfg.Report.Color = config.ColorNever

	pf, err := parseProfileFlags([]string{"-d", "3", "-json", "out.json", "-no-lock", "-c", "true"}, &bytes.Buffer{})
	require.NoError(t, err)
	pf.apply(&cfg)

	assert.Equal(t, 250, cfg.Sampler.IntervalMs, "unset flags must not reset config values")
	assert.Equal(t, config.ColorNever, cfg.Report.Color)
	assert.Equal(t, 3, cfg.Sampler.StartupDelaySeconds)
	assert.Equal(t, "out.json", cfg.Report.JSONPath)
	assert.False(t, cfg.Lock.Enabled)

	pf, err = parseProfileFlags([]string{"-sampling-interval", "50", "-sampler", "/opt/smi", "-log-level", "debug", "-c", "true"}, &bytes.Buffer{})
	require.NoError(t, err)
	pf.apply(&cfg)

	assert.Equal(t, 50, cfg.Sampler.IntervalMs)
	assert.Equal(t, "/opt/smi", cfg.Sampler.Binary)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestRun_NoArgs(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, exitConfig, run(nil, &bytes.Buffer{}, &stderr))
	assert.Contains(t, stderr.String(), "Usage:")
}

func TestRun_Version(t *testing.T) {
	var stdout bytes.Buffer
	assert.Equal(t, exitOK, run([]string{"version"}, &stdout, &bytes.Buffer{}))
	assert.Equal(t, "gpuwatch version "+version+"\n", stdout.String())
}

func TestRun_Fields(t *testing.T) {
	var stdout bytes.Buffer
	assert.Equal(t, exitOK, run([]string{"fields"}, &stdout, &bytes.Buffer{}))

	out := stdout.String()
	for _, name := range sampling.DefaultSpec().Names() {
		assert.Contains(t, out, name)
	}
}

func TestRunProfile_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing command", []string{"-s", "100"}},
		{"zero interval", []string{"-s", "0", "-c", "true"}},
		{"negative delay", []string{"-d", "-1", "-c", "true"}},
		{"bad color", []string{"-color", "rainbow", "-c", "true"}},
		{"bad log level", []string{"-log-level", "loud", "-c", "true"}},
		{"missing config file", []string{"-config", "/nonexistent/gpuwatch.yaml", "-c", "true"}},
		{"unknown flag", []string{"-frobnicate", "-c", "true"}},
		{"sampler not found", []string{"-no-lock", "-color", "never", "-sampler", "/nonexistent/nvidia-smi", "-c", "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			var stdout, stderr bytes.Buffer

			code := runProfile(context.Background(), tt.args, &stdout, &stderr)
			assert.Equal(t, exitConfig, code, "stdout=%s stderr=%s", stdout.String(), stderr.String())
		})
	}
}

func TestLoadConfig_FlagsOverrideInvalidFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sampler:\n  interval_ms: 0\n"), 0o600))

	pf, err := parseProfileFlags([]string{"-config", path, "-s", "500", "-c", "true"}, &bytes.Buffer{})
	require.NoError(t, err)
	cfg, err := loadConfig(pf)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Sampler.IntervalMs)

	pf, err = parseProfileFlags([]string{"-config", path, "-c", "true"}, &bytes.Buffer{})
	require.NoError(t, err)
	_, err = loadConfig(pf)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRunProfile_LeaseHeld(t *testing.T) {
	stateDir := isolate(t)

	manager := gpulock.NewManager(stateDir, logging.NewLoggerWithWriter(logging.LevelError, &bytes.Buffer{}))
	require.NoError(t, manager.Acquire(gpulock.Holder{RunID: "other-run", PID: os.Getpid()}))

	var stdout bytes.Buffer
	code := runProfile(context.Background(), []string{"-color", "never", "-c", "true"}, &stdout, &bytes.Buffer{})

	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stdout.String(), "ERROR:")
	assert.Contains(t, stdout.String(), "gpuwatch unlock")
}

func TestUnlock(t *testing.T) {
	stateDir := isolate(t)

	var stdout bytes.Buffer
	require.Equal(t, exitOK, runUnlock([]string{"-yes"}, &stdout, &bytes.Buffer{}))
	assert.Contains(t, stdout.String(), "not locked")

	manager := gpulock.NewManager(stateDir, logging.NewLoggerWithWriter(logging.LevelError, &bytes.Buffer{}))
	require.NoError(t, manager.Acquire(gpulock.Holder{RunID: "stuck", PID: os.Getpid()}))

	// Declining keeps the lease.
	stdin = strings.NewReader("no\n")
	t.Cleanup(func() { stdin = os.Stdin })
	stdout.Reset()
	require.Equal(t, exitOK, runUnlock(nil, &stdout, &bytes.Buffer{}))
	assert.Contains(t, stdout.String(), "cancelled")
	locked, err := manager.IsLocked()
	require.NoError(t, err)
	assert.True(t, locked)

	stdin = strings.NewReader("yes\n")
	stdout.Reset()
	require.Equal(t, exitOK, runUnlock(nil, &stdout, &bytes.Buffer{}))
	assert.Contains(t, stdout.String(), "run stuck")
	locked, err = manager.IsLocked()
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestRunProfile_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	stateDir := isolate(t)

	sampler := filepath.Join(t.TempDir(), "fake-smi")
	script := "#!/bin/sh\ntrap 'exit 0' INT\nwhile true; do echo '100, 2048, 800, 61, 55, Enabled, 210.25, 1500, 900'; sleep 0.1; done\n"
	require.NoError(t, os.WriteFile(sampler, []byte(script), 0o700))

	jsonPath := filepath.Join(t.TempDir(), "run.json")
	var stdout, stderr bytes.Buffer

	code := runProfile(context.Background(), []string{
		"-sampler", sampler,
		"-s", "100",
		"-color", "never",
		"-json", jsonPath,
		"--", "sleep", "1",
	}, &stdout, &stderr)
	require.Equal(t, exitOK, code, "stdout=%s stderr=%s", stdout.String(), stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "MONITORING")
	assert.Contains(t, out, "WARNING: executions <5s may lead to inaccurate results")
	assert.Contains(t, out, "2048 MiB (2.00 GiB)")
	assert.Contains(t, out, "210.25 W")

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "inaccurate", doc["validity"])
	assert.Equal(t, []interface{}{"sleep", "1"}, doc["command"])

	// The lease is released after the run.
	_, err = os.Stat(filepath.Join(stateDir, gpulock.LockFileName))
	assert.True(t, os.IsNotExist(err))
}
