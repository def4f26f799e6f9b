package metrics

import (
	"context"
	"fmt"

	"github.com/xscopehub/capmon/internal/series"
	"github.com/xscopehub/capmon/internal/task"
)

// Query retrieves Timeseries data for one expression from one datasource
// over a lookback window. A Query is one-shot: the absolute window is
// computed when the fetch runs, so a new request needs a new Query.
type Query interface {
	task.Task[[]series.Timeseries]

	// FetchResult retrieves raw samples and returns one Timeseries per
	// distinct series name found, failing with *QueryError on empty,
	// malformed, or unreachable results.
	FetchResult(ctx context.Context) ([]series.Timeseries, error)
}

// QueryError is the only failure shape surfaced by a Query. It carries the
// backend, the expression, and the validation stage that failed.
type QueryError struct {
	Datasource string
	Query      string
	Reason     string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %s (source: %s, query: %s)", e.Reason, e.Datasource, e.Query)
}

// ExecMessage implements task.ExecError.
func (e *QueryError) ExecMessage() string { return e.Error() }

// groupedSamples accumulates samples per series name while remembering the
// order in which names first appeared in the backend response.
type groupedSamples struct {
	order []string
	data  map[string]map[int64]float64
}

func newGroupedSamples() *groupedSamples {
	return &groupedSamples{data: make(map[string]map[int64]float64)}
}

func (g *groupedSamples) add(name string, ts int64, val float64) {
	if _, ok := g.data[name]; !ok {
		g.order = append(g.order, name)
		g.data[name] = make(map[int64]float64)
	}
	g.data[name][ts] = val
}

func (g *groupedSamples) toSeries() []series.Timeseries {
	out := make([]series.Timeseries, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, series.New(name, g.data[name]))
	}
	return out
}
