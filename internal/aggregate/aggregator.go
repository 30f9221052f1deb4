package aggregate

import (
	"fmt"

	"gpuwatch/internal/sampling"
)

// Family names a metric role tracked by the Aggregator.
type Family string

// Tracked families.
const (
	FamilyMemory      Family = "memory"
	FamilyTemperature Family = "temperature"
	FamilyPower       Family = "power"
	FamilyClockSM     Family = "clock_sm"
	FamilyClockMemory Family = "clock_memory"
)

var familyFields = []struct {
	family Family
	field  string
}{
	{FamilyMemory, sampling.FieldMemoryUsed},
	{FamilyTemperature, sampling.FieldTemperatureGPU},
	{FamilyPower, sampling.FieldPowerDraw},
	{FamilyClockSM, sampling.FieldClockSM},
	{FamilyClockMemory, sampling.FieldClockMemory},
}

// Stats is the running reduction for one run.
type Stats struct {
	Memory      Series
	Temperature Series
	Power       Series
	ClockSM     Series
	ClockMemory Series
	// Samples counts every row folded, whether or not each family had a reading.
	Samples int
	// Skipped counts unparseable readings per family.
	Skipped map[Family]int
}

func (s *Stats) series(f Family) *Series {
	switch f {
	case FamilyMemory:
		return &s.Memory
	case FamilyTemperature:
		return &s.Temperature
	case FamilyPower:
		return &s.Power
	case FamilyClockSM:
		return &s.ClockSM
	case FamilyClockMemory:
		return &s.ClockMemory
	}
	return nil
}

type column struct {
	family Family
	index  int
}

// Aggregator folds rows into Stats. It is not safe for concurrent use.
type Aggregator struct {
	columns []column
	stats   Stats
}

// New resolves each tracked family's column in spec.
func New(spec sampling.MetricSpec) (*Aggregator, error) {
	a := &Aggregator{stats: Stats{Skipped: make(map[Family]int)}}
	for _, ff := range familyFields {
		idx := spec.Index(ff.field)
		if idx < 0 {
			return nil, fmt.Errorf("metric spec is missing required field %q", ff.field)
		}
		a.columns = append(a.columns, column{family: ff.family, index: idx})
	}
	return a, nil
}

// Fold adds one row. A reading that has no numeric value is left out of its
// family and counted in Skipped; the rest of the row still counts.
func (a *Aggregator) Fold(row sampling.Row) {
	for _, c := range a.columns {
		v, ok := row.Number(c.index)
		if !ok {
			a.stats.Skipped[c.family]++
			continue
		}
		a.stats.series(c.family).Observe(v)
	}
	a.stats.Samples++
}

// Stats returns a copy of the current reduction.
func (a *Aggregator) Stats() Stats {
	out := a.stats
	out.Skipped = make(map[Family]int, len(a.stats.Skipped))
	for k, v := range a.stats.Skipped {
		out.Skipped[k] = v
	}
	return out
}

// Finalize is shorthand for Finalize(a.Stats()).
func (a *Aggregator) Finalize() (Summary, error) {
	return Finalize(a.Stats())
}
