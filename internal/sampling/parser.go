package sampling

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrSchemaMismatch reports a row whose column count differs from the
// requested MetricSpec. It is never recovered from.
var ErrSchemaMismatch = errors.New("sampler output does not match requested fields")

// MaxLineBytes bounds a single sampler line. A longer line can not be a row
// of any supported MetricSpec and is reported as a schema mismatch.
const MaxLineBytes = 1 << 20

// SchemaMismatchError carries the offending row.
type SchemaMismatchError struct {
	Got  int
	Want int
	Line string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("invalid number of columns returned by sampler: got %d, want %d (line %q)", e.Got, e.Want, e.Line)
}

// Is lets errors.Is match ErrSchemaMismatch.
func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// Row is one decoded observation, positionally aligned with its MetricSpec.
type Row []Value

// Number returns the numeric value of column i.
func (r Row) Number(i int) (float64, bool) {
	if i < 0 || i >= len(r) {
		return 0, false
	}
	return r[i].Number()
}

// ParseRow decodes one CSV line. Blank lines return ok=false and no error.
func ParseRow(line string, spec MetricSpec) (Row, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false, nil
	}

	fields := strings.Split(line, ",")
	if len(fields) != len(spec) {
		return nil, false, &SchemaMismatchError{Got: len(fields), Want: len(spec), Line: line}
	}

	row := make(Row, len(fields))
	for i, raw := range fields {
		row[i] = decode(spec[i].Decoder, strings.TrimSpace(raw))
	}
	return row, true, nil
}

// ParseOutput decodes every line of r and hands each row to fn. It returns
// the number of rows delivered and stops at the first schema mismatch.
func ParseOutput(r io.Reader, spec MetricSpec, fn func(Row)) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	rows := 0
	for scanner.Scan() {
		row, ok, err := ParseRow(scanner.Text(), spec)
		if err != nil {
			return rows, err
		}
		if !ok {
			continue
		}
		fn(row)
		rows++
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return rows, fmt.Errorf("%w: line longer than %d bytes", ErrSchemaMismatch, MaxLineBytes)
		}
		return rows, fmt.Errorf("failed to read sampler output: %w", err)
	}
	return rows, nil
}
