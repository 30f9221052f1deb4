package aggregate

// Summary is the read-only result of a run. Pointer fields are nil when the
// family had no valid reading.
type Summary struct {
	Samples           int            `json:"samples"`
	MaxMemoryMiB      *float64       `json:"max_memory_mib,omitempty"`
	MinTemperatureC   *float64       `json:"min_temperature_c,omitempty"`
	MaxTemperatureC   *float64       `json:"max_temperature_c,omitempty"`
	MinPowerW         *float64       `json:"min_power_w,omitempty"`
	MaxPowerW         *float64       `json:"max_power_w,omitempty"`
	AvgPowerW         *float64       `json:"avg_power_w,omitempty"`
	MaxClockSMMHz     *float64       `json:"max_clock_sm_mhz,omitempty"`
	MaxClockMemoryMHz *float64       `json:"max_clock_memory_mhz,omitempty"`
	Skipped           map[Family]int `json:"skipped,omitempty"`
}

// Finalize derives a Summary from stats. It does not modify stats, so calling
// it twice on the same value yields equal summaries.
func Finalize(stats Stats) (Summary, error) {
	if stats.Samples == 0 {
		return Summary{}, ErrEmptyDataset
	}

	summary := Summary{
		Samples:           stats.Samples,
		MaxMemoryMiB:      maxOf(stats.Memory),
		MinTemperatureC:   minOf(stats.Temperature),
		MaxTemperatureC:   maxOf(stats.Temperature),
		MinPowerW:         minOf(stats.Power),
		MaxPowerW:         maxOf(stats.Power),
		MaxClockSMMHz:     maxOf(stats.ClockSM),
		MaxClockMemoryMHz: maxOf(stats.ClockMemory),
	}

	if avg, err := stats.Power.Mean(); err == nil {
		summary.AvgPowerW = &avg
	}

	for family, n := range stats.Skipped {
		if n == 0 {
			continue
		}
		if summary.Skipped == nil {
			summary.Skipped = make(map[Family]int)
		}
		summary.Skipped[family] = n
	}

	return summary, nil
}

func maxOf(s Series) *float64 {
	if s.Empty() {
		return nil
	}
	v := s.Max
	return &v
}

func minOf(s Series) *float64 {
	if s.Empty() {
		return nil
	}
	v := s.Min
	return &v
}
