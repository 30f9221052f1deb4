package monitor

import (
	"errors"

	"gpuwatch/internal/sampling"
)

// Code classifies a failed run.
type Code string

// Run failure codes.
const (
	CodeConfig         Code = "CONFIG"
	CodeWorkloadStart  Code = "WORKLOAD_START_FAILED"
	CodeSamplerStart   Code = "SAMPLER_START_FAILED"
	CodeShortRun       Code = "SHORT_RUN"
	CodeSamplerFailure Code = "SAMPLER_FAILURE"
	CodeEmptyOutput    Code = "EMPTY_OUTPUT"
	CodeSchemaMismatch Code = "SCHEMA_MISMATCH"
)

// Sentinels matched by errors.Is against a *RunError.
var (
	ErrConfig         = errors.New("invalid run configuration")
	ErrWorkloadStart  = errors.New("workload failed to start")
	ErrSamplerStart   = errors.New("sampler failed to start")
	ErrShortRun       = errors.New("run too short to profile")
	ErrSamplerFailure = errors.New("sampler reported errors")
	ErrEmptyOutput    = errors.New("sampler returned no data")
	ErrSchemaMismatch = sampling.ErrSchemaMismatch
)

var sentinels = map[Code]error{
	CodeConfig:         ErrConfig,
	CodeWorkloadStart:  ErrWorkloadStart,
	CodeSamplerStart:   ErrSamplerStart,
	CodeShortRun:       ErrShortRun,
	CodeSamplerFailure: ErrSamplerFailure,
	CodeEmptyOutput:    ErrEmptyOutput,
	CodeSchemaMismatch: ErrSchemaMismatch,
}

// RunError is a fatal run outcome. No report is produced when Run returns one.
type RunError struct {
	Code    Code
	Message string
	Err     error
}

func (e *RunError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Code)
	}
}

// Unwrap returns the wrapped error for errors.Is/As compatibility.
func (e *RunError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's code.
func (e *RunError) Is(target error) bool {
	return sentinels[e.Code] == target
}

func runError(code Code, message string, err error) *RunError {
	return &RunError{Code: code, Message: message, Err: err}
}
