package api

import (
	"time"

	"github.com/xscopehub/capmon/internal/report"
	"github.com/xscopehub/capmon/internal/series"
)

// Request defines the payload for POST /api/analyze.
type Request struct {
	Datasource   string  `json:"datasource"`
	Query        string  `json:"query"`
	LookbackDays int     `json:"lookback_days"`
	ForecastDays float64 `json:"forecast_days"`
	Step         string  `json:"step"`
}

// StepDuration parses the step duration if provided.
func (r Request) StepDuration() (time.Duration, error) {
	if r.Step == "" {
		return 0, nil
	}
	return time.ParseDuration(r.Step)
}

// Response carries the rendered analysis report plus runtime statistics.
type Response struct {
	Datasource  string        `json:"datasource"`
	Query       string        `json:"query"`
	Forecasts   []SeriesData  `json:"forecasts"`
	DailyTrend  []TrendBucket `json:"daily_trend,omitempty"`
	HourlyTrend []TrendBucket `json:"hourly_trend,omitempty"`
	Stats       Stats         `json:"stats"`
}

// SeriesData is one time-ordered series in a response.
type SeriesData struct {
	Name   string      `json:"name"`
	Points []DataPoint `json:"points"`
}

// DataPoint is a single timestamped value.
type DataPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// TrendBucket is one aggregated trend value keyed by weekday name or hour of
// day.
type TrendBucket struct {
	Bucket string  `json:"bucket"`
	Value  float64 `json:"value"`
}

// Stats describes runtime statistics for one analyze request.
type Stats struct {
	Cached      bool  `json:"cached"`
	DurationMS  int64 `json:"duration_ms"`
	SeriesCount int   `json:"series_count"`
}

// RenderSeries converts a Timeseries into its wire form.
func RenderSeries(s series.Timeseries) SeriesData {
	table := s.Table()
	points := make([]DataPoint, 0, len(table))
	for _, p := range table {
		points = append(points, DataPoint{Time: p.T, Value: p.V})
	}
	return SeriesData{Name: s.Name(), Points: points}
}

// RenderTrend converts a Trend into ordered buckets, following the given key
// order and skipping unpopulated buckets.
func RenderTrend(t report.Trend, keys []string) []TrendBucket {
	out := make([]TrendBucket, 0, len(keys))
	for _, k := range keys {
		if v, ok := t.Value(k); ok {
			out = append(out, TrendBucket{Bucket: k, Value: v})
		}
	}
	return out
}

// FromReport renders a full report into a Response body. Presence of each
// report section is checked before dereferencing it.
func FromReport(req Request, rep report.Report) Response {
	resp := Response{
		Datasource: req.Datasource,
		Query:      req.Query,
	}
	if rep.ContainsForecasts() {
		forecasts := rep.Forecasts()
		resp.Forecasts = make([]SeriesData, 0, len(forecasts))
		for _, f := range forecasts {
			resp.Forecasts = append(resp.Forecasts, RenderSeries(f))
		}
		resp.Stats.SeriesCount = len(forecasts)
	}
	if rep.ContainsDailyTrend() {
		resp.DailyTrend = RenderTrend(rep.DailyTrend(), report.Weekdays)
	}
	if rep.ContainsHourlyTrend() {
		resp.HourlyTrend = RenderTrend(rep.HourlyTrend(), report.HourKeys())
	}
	return resp
}
