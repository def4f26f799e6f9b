package report

import (
	"strconv"

	"github.com/xscopehub/capmon/internal/series"
)

// Weekdays lists weekday bucket keys in rendering order.
var Weekdays = []string{
	"Monday",
	"Tuesday",
	"Wednesday",
	"Thursday",
	"Friday",
	"Saturday",
	"Sunday",
}

// HourKey formats an hour-of-day bucket key.
func HourKey(hour int) string { return strconv.Itoa(hour) }

// HourKeys lists hour bucket keys in rendering order (0 through 23).
func HourKeys() []string {
	keys := make([]string, 24)
	for i := range keys {
		keys[i] = HourKey(i)
	}
	return keys
}

// Trend is a read-only named mapping from bucket keys (weekday names or
// hours of day) to aggregated trend values.
type Trend struct {
	name string
	vals map[string]float64
}

// NewTrend builds a Trend, copying the bucket values.
func NewTrend(name string, vals map[string]float64) Trend {
	copied := make(map[string]float64, len(vals))
	for k, v := range vals {
		copied[k] = v
	}
	return Trend{name: name, vals: copied}
}

// Name returns the trend identifier.
func (t Trend) Name() string { return t.name }

// Len returns the number of populated buckets.
func (t Trend) Len() int { return len(t.vals) }

// Value returns the aggregated value at the given bucket key, if populated.
func (t Trend) Value(key string) (float64, bool) {
	v, ok := t.vals[key]
	return v, ok
}

// Buckets returns a copy of the underlying bucket mapping.
func (t Trend) Buckets() map[string]float64 {
	copied := make(map[string]float64, len(t.vals))
	for k, v := range t.vals {
		copied[k] = v
	}
	return copied
}

// Report is the immutable result of one forecasting pass: one forecast
// series per input, in input order, plus the cross-series weekday and
// hour-of-day trend aggregates.
type Report struct {
	forecasts []series.Timeseries
	daily     Trend
	hourly    Trend
}

// New assembles a Report. The forecasts slice is copied; order is preserved.
func New(forecasts []series.Timeseries, daily, hourly Trend) Report {
	copied := make([]series.Timeseries, len(forecasts))
	copy(copied, forecasts)
	return Report{forecasts: copied, daily: daily, hourly: hourly}
}

// ContainsForecasts reports whether any forecast series are present.
func (r Report) ContainsForecasts() bool { return len(r.forecasts) > 0 }

// Forecasts returns the forecast series in input order.
func (r Report) Forecasts() []series.Timeseries {
	copied := make([]series.Timeseries, len(r.forecasts))
	copy(copied, r.forecasts)
	return copied
}

// ContainsDailyTrend reports whether the weekday-bucketed trend is populated.
func (r Report) ContainsDailyTrend() bool { return r.daily.Len() > 0 }

// DailyTrend returns the weekday-bucketed trend aggregate.
func (r Report) DailyTrend() Trend { return r.daily }

// ContainsHourlyTrend reports whether the hour-bucketed trend is populated.
func (r Report) ContainsHourlyTrend() bool { return r.hourly.Len() > 0 }

// HourlyTrend returns the hour-bucketed trend aggregate.
func (r Report) HourlyTrend() Trend { return r.hourly }
