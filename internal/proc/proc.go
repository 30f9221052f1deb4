// Package proc wraps os/exec child processes with an explicit lifecycle:
// start, wait, signal and drain.
package proc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// Spec describes a child process.
type Spec struct {
	Name string
	Args []string
	// Capture buffers stdout and stderr for Output instead of passing them through.
	Capture bool
	// Isolate starts the child in its own process group so a terminal Ctrl-C
	// only reaches it through an explicit signal.
	Isolate bool
	// Stdin, Stdout and Stderr default to the parent's when Capture is false.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Handle is the lifecycle surface of a running child.
type Handle interface {
	Pid() int
	Done() <-chan struct{}
	Wait() error
	Interrupt() error
	Terminate() error
	Kill() error
	Output() (stdout, stderr []byte)
	ExitCode() int
}

// Starter launches processes.
type Starter interface {
	Start(spec Spec) (Handle, error)
}

// ExecStarter starts real OS processes.
type ExecStarter struct{}

// Start implements Starter.
func (ExecStarter) Start(spec Spec) (Handle, error) {
	return Start(spec)
}

// TerminationError is returned when a signal could not be delivered to a
// process that is still running.
type TerminationError struct {
	Name   string
	Pid    int
	Signal os.Signal
	Err    error
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("failed to send %v to %s (pid %d): %v", e.Signal, e.Name, e.Pid, e.Err)
}

func (e *TerminationError) Unwrap() error {
	return e.Err
}

// Process is a started child. A reaper goroutine waits on it and closes Done.
type Process struct {
	spec    Spec
	cmd     *exec.Cmd
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	done    chan struct{}
	waitErr error
}

// Start launches spec without blocking.
func Start(spec Spec) (*Process, error) {
	if spec.Name == "" {
		return nil, errors.New("process name is empty")
	}

	p := &Process{spec: spec, done: make(chan struct{})}

	// #nosec G204 -- running operator-supplied commands is the purpose of this tool
	cmd := exec.Command(spec.Name, spec.Args...)
	if spec.Capture {
		cmd.Stdout = &p.stdout
		cmd.Stderr = &p.stderr
	} else {
		cmd.Stdin = orReader(spec.Stdin, os.Stdin)
		cmd.Stdout = orWriter(spec.Stdout, os.Stdout)
		cmd.Stderr = orWriter(spec.Stderr, os.Stderr)
	}
	if spec.Isolate {
		isolate(cmd)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.Name, err)
	}
	p.cmd = cmd

	go func() {
		// cmd.Wait also waits for the stdout/stderr copy goroutines, so the
		// buffers are complete once done is closed.
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// Name returns the executable name.
func (p *Process) Name() string {
	return p.spec.Name
}

// Pid returns the OS process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until exit. It may be called any number of times.
func (p *Process) Wait() error {
	<-p.done
	return p.waitErr
}

// Interrupt sends SIGINT.
func (p *Process) Interrupt() error {
	return p.signal(os.Interrupt)
}

// Terminate sends SIGTERM.
func (p *Process) Terminate() error {
	return p.signal(syscall.SIGTERM)
}

// Kill sends SIGKILL.
func (p *Process) Kill() error {
	return p.signal(os.Kill)
}

// signal delivers sig. A process that already exited is not an error.
func (p *Process) signal(sig os.Signal) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	err := p.cmd.Process.Signal(sig)
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return &TerminationError{Name: p.spec.Name, Pid: p.Pid(), Signal: sig, Err: err}
}

// Output returns captured stdout and stderr. It blocks until the process has
// exited so callers never observe a partial read.
func (p *Process) Output() (stdout, stderr []byte) {
	<-p.done
	return p.stdout.Bytes(), p.stderr.Bytes()
}

// ExitCode returns the exit status, or -1 if the process was killed by a
// signal or has not exited.
func (p *Process) ExitCode() int {
	select {
	case <-p.done:
		return p.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}

func orReader(r io.Reader, def io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return def
}

func orWriter(w io.Writer, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}
