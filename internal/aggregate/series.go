// Package aggregate reduces decoded telemetry rows into run statistics.
package aggregate

import "errors"

// ErrEmptyDataset is returned when a statistic is requested over zero samples.
var ErrEmptyDataset = errors.New("no valid samples to aggregate")

// Series is a running min/max/sum/count over one metric. The extrema are
// seeded by the first observation, so no reading can fall outside a sentinel.
type Series struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Sum   float64 `json:"sum"`
	Count int     `json:"count"`
}

// Observe folds v into the series.
func (s *Series) Observe(v float64) {
	if s.Count == 0 {
		s.Min, s.Max = v, v
	} else {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Sum += v
	s.Count++
}

// Mean returns Sum/Count, or ErrEmptyDataset when nothing was observed.
func (s Series) Mean() (float64, error) {
	if s.Count == 0 {
		return 0, ErrEmptyDataset
	}
	return s.Sum / float64(s.Count), nil
}

// Empty reports whether the series saw no readings.
func (s Series) Empty() bool {
	return s.Count == 0
}
