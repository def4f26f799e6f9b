package metrics

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/xscopehub/capmon/internal/restclient"
	"github.com/xscopehub/capmon/internal/series"
)

const promRangePath = "/api/v1/query_range"

// PrometheusQuery fetches Timeseries data from a Prometheus datasource via
// its range-query API.
type PrometheusQuery struct {
	query  string
	source string
	days   int
	step   string
	client *restclient.Client
}

// NewPrometheusQuery builds a range query against the given source. Zero
// values fall back to source http://localhost:9090, a 7 day lookback, and a
// 1h step.
func NewPrometheusQuery(query, source string, lookbackDays int, step string, timeout time.Duration) (*PrometheusQuery, error) {
	if source == "" {
		source = "http://localhost:9090"
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
	return &PrometheusQuery{
		query:  query,
		source: source,
		days:   lookbackDays,
		step:   step,
		client: client,
	}, nil
}

// Execute implements task.Task by delegating to FetchResult.
func (q *PrometheusQuery) Execute(ctx context.Context) ([]series.Timeseries, error) {
	return q.FetchResult(ctx)
}

// FetchResult retrieves range data over [now - lookback, now], grouping
// samples into one Timeseries per metric name. The window is sampled from
// the wall clock at call time.
func (q *PrometheusQuery) FetchResult(ctx context.Context) ([]series.Timeseries, error) {
	end := time.Now().Unix()
	start := end - int64(q.days)*86400
	grouped, err := q.rangeData(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return grouped.toSeries(), nil
}

type promResponse struct {
	Status string    `json:"status"`
	Data   *promData `json:"data"`
}

type promData struct {
	Result []promResult `json:"result"`
}

type promResult struct {
	Metric map[string]string `json:"metric"`
	Values [][]any           `json:"values"`
}

func (q *PrometheusQuery) rangeData(ctx context.Context, start, end int64) (*groupedSamples, error) {
	params := url.Values{}
	params.Set("start", strconv.FormatInt(start, 10))
	params.Set("end", strconv.FormatInt(end, 10))
	params.Set("step", q.step)
	params.Set("query", q.query)

	var res promResponse
	if err := q.client.GetJSON(ctx, promRangePath, params, &res); err != nil {
		var clientErr *restclient.Error
		if errors.As(err, &clientErr) {
			return nil, q.fail(clientErr.Error() + "; unable to fetch data from source")
		}
		return nil, q.fail(err.Error() + "; unable to fetch data from source")
	}

	if err := q.validate(res); err != nil {
		return nil, err
	}

	grouped := newGroupedSamples()
	for _, metric := range res.Data.Result {
		name := metric.Metric["__name__"]
		for _, sample := range metric.Values {
			ts, val, ok := coercePromSample(sample)
			if !ok {
				return nil, q.fail("Unable to parse result from source")
			}
			grouped.add(name, ts, val)
		}
	}
	return grouped, nil
}

// validate enforces the response checks in order: status, data presence,
// non-empty result.
func (q *PrometheusQuery) validate(res promResponse) error {
	if res.Status != "success" {
		return q.fail("Unable to make successful query")
	}
	if res.Data == nil {
		return q.fail("Unable to parse result from source")
	}
	if len(res.Data.Result) == 0 {
		return q.fail("No results returned")
	}
	return nil
}

// coercePromSample converts a [timestamp, "value"] pair into integer seconds
// and a float value.
func coercePromSample(sample []any) (int64, float64, bool) {
	if len(sample) != 2 {
		return 0, 0, false
	}
	ts, ok := sample[0].(float64)
	if !ok {
		return 0, 0, false
	}
	raw, ok := sample[1].(string)
	if !ok {
		return 0, 0, false
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, 0, false
	}
	return int64(ts), val, true
}

func (q *PrometheusQuery) fail(reason string) *QueryError {
	return &QueryError{
		Datasource: q.source,
		Query:      q.query,
		Reason:     reason,
	}
}
