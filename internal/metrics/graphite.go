package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/xscopehub/capmon/internal/restclient"
	"github.com/xscopehub/capmon/internal/series"
)

const graphiteRenderPath = "/render"

// GraphiteQuery fetches Timeseries data from a Graphite datasource via its
// render API, wrapping the target in a summarize() call at the requested
// step.
type GraphiteQuery struct {
	query  string
	source string
	step   string
	from   string
	client *restclient.Client
}

// NewGraphiteQuery builds a render query against the given source. Zero
// values fall back to source http://localhost:8080, a 7 day lookback, and a
// 1h step.
func NewGraphiteQuery(query, source string, lookbackDays int, step string, timeout time.Duration) (*GraphiteQuery, error) {
	if source == "" {
		source = "http://localhost:8080"
	}
	if lookbackDays <= 0 {
		lookbackDays = 7
	}
	if step == "" {
		step = "1h"
	}
	client, err := restclient.New(source, timeout)
	if err != nil {
		return nil, err
	}
	return &GraphiteQuery{
		query:  query,
		source: source,
		step:   step,
		from:   fmt.Sprintf("-%dd", lookbackDays),
		client: client,
	}, nil
}

// Execute implements task.Task by delegating to FetchResult.
func (q *GraphiteQuery) Execute(ctx context.Context) ([]series.Timeseries, error) {
	return q.FetchResult(ctx)
}

// FetchResult retrieves render data over the relative lookback window,
// grouping samples into one Timeseries per series name.
func (q *GraphiteQuery) FetchResult(ctx context.Context) ([]series.Timeseries, error) {
	grouped, err := q.renderData(ctx)
	if err != nil {
		return nil, err
	}
	return grouped.toSeries(), nil
}

type graphiteSeries struct {
	Tags       map[string]any `json:"tags"`
	Datapoints [][]any        `json:"datapoints"`
}

func (q *GraphiteQuery) renderData(ctx context.Context) (*groupedSamples, error) {
	params := url.Values{}
	params.Set("target", fmt.Sprintf("summarize(%s,%q)", q.query, q.step))
	params.Set("format", "json")
	params.Set("from", q.from)

	var res []graphiteSeries
	if err := q.client.GetJSON(ctx, graphiteRenderPath, params, &res); err != nil {
		var clientErr *restclient.Error
		if errors.As(err, &clientErr) {
			return nil, q.fail(clientErr.Error() + "; unable to fetch data from source")
		}
		return nil, q.fail(err.Error() + "; unable to fetch data from source")
	}

	if len(res) == 0 {
		return nil, q.fail("No results returned")
	}

	grouped := newGroupedSamples()
	for _, metric := range res {
		name, ok := metric.Tags["name"].(string)
		if !ok {
			return nil, q.fail("Got bad data response")
		}
		for _, point := range metric.Datapoints {
			ts, val, null, ok := coerceGraphiteSample(point)
			if !ok {
				return nil, q.fail("Got bad data response")
			}
			// null means "no data at this bucket", not zero
			if null {
				continue
			}
			grouped.add(name, ts, val)
		}
	}
	return grouped, nil
}

// coerceGraphiteSample converts a [value, timestamp] pair. The value may be
// null, which is reported separately from a malformed pair.
func coerceGraphiteSample(point []any) (ts int64, val float64, null, ok bool) {
	if len(point) != 2 {
		return 0, 0, false, false
	}
	rawTS, tsOK := point[1].(float64)
	if !tsOK {
		return 0, 0, false, false
	}
	if point[0] == nil {
		return int64(rawTS), 0, true, true
	}
	rawVal, valOK := point[0].(float64)
	if !valOK {
		return 0, 0, false, false
	}
	return int64(rawTS), rawVal, false, true
}

func (q *GraphiteQuery) fail(reason string) *QueryError {
	return &QueryError{
		Datasource: q.source,
		Query:      q.query,
		Reason:     reason,
	}
}
