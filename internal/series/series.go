package series

import (
	"sort"
	"time"
)

// Timeseries is an immutable named mapping from unix-second timestamps to
// recorded values. Instances are created once per fetch or forecast step and
// shared read-only afterwards.
type Timeseries struct {
	name string
	vals map[int64]float64
}

// Point is one row of the tabular projection of a Timeseries.
type Point struct {
	T time.Time
	V float64
}

// New builds a Timeseries from raw timestamp/value pairs. The input map is
// copied so later mutation by the caller cannot leak into the series.
func New(name string, vals map[int64]float64) Timeseries {
	copied := make(map[int64]float64, len(vals))
	for ts, v := range vals {
		copied[ts] = v
	}
	return Timeseries{name: name, vals: copied}
}

// FromTable reconstructs a Timeseries from a tabular projection, truncating
// timestamps to whole seconds.
func FromTable(name string, points []Point) Timeseries {
	vals := make(map[int64]float64, len(points))
	for _, p := range points {
		vals[p.T.Unix()] = p.V
	}
	return Timeseries{name: name, vals: vals}
}

// Name returns the series identifier.
func (s Timeseries) Name() string { return s.name }

// Len returns the number of samples in the series.
func (s Timeseries) Len() int { return len(s.vals) }

// Value returns the sample at the given unix timestamp, if present.
func (s Timeseries) Value(ts int64) (float64, bool) {
	v, ok := s.vals[ts]
	return v, ok
}

// Raw returns a copy of the underlying timestamp/value mapping.
func (s Timeseries) Raw() map[int64]float64 {
	copied := make(map[int64]float64, len(s.vals))
	for ts, v := range s.vals {
		copied[ts] = v
	}
	return copied
}

// Table returns the time-ordered tabular projection of the series with
// timestamps in UTC at second precision. An empty series yields nil.
func (s Timeseries) Table() []Point {
	if len(s.vals) == 0 {
		return nil
	}
	points := make([]Point, 0, len(s.vals))
	for ts, v := range s.vals {
		points = append(points, Point{T: time.Unix(ts, 0).UTC(), V: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].T.Before(points[j].T) })
	return points
}
