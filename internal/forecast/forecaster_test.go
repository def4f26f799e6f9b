package forecast

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/xscopehub/capmon/internal/report"
	"github.com/xscopehub/capmon/internal/series"
	"github.com/xscopehub/capmon/internal/task"
)

// stubEngine hands out one constant model per Fit call, in order, which makes
// the Forecaster's aggregation arithmetic directly checkable.
type stubEngine struct {
	trends []float64
	calls  int
	err    error
}

func (e *stubEngine) Name() string { return "stub" }

func (e *stubEngine) Fit(points []series.Point) (Model, error) {
	if e.err != nil {
		return nil, e.err
	}
	trend := e.trends[e.calls%len(e.trends)]
	e.calls++
	return constantModel{value: trend, trend: trend}, nil
}

type constantModel struct {
	value float64
	trend float64
}

func (m constantModel) Predict(times []time.Time) []Prediction {
	out := make([]Prediction, 0, len(times))
	for _, ts := range times {
		out = append(out, Prediction{T: ts, Value: m.value, Trend: m.trend})
	}
	return out
}

func hourlySeries(name string, start time.Time, n int) series.Timeseries {
	vals := make(map[int64]float64, n)
	for i := 0; i < n; i++ {
		vals[start.Add(time.Duration(i)*time.Hour).Unix()] = float64(i)
	}
	return series.New(name, vals)
}

func TestHorizonHours(t *testing.T) {
	tests := []struct {
		days float64
		want int
	}{
		{days: 7, want: 168},
		{days: 1, want: 24},
		{days: 0.5, want: 12},
		{days: 1.0208, want: 24}, // 24.4992 hours
		{days: 1.05, want: 25},   // 25.2 hours
	}
	for _, tt := range tests {
		if got := horizonHours(tt.days); got != tt.want {
			t.Errorf("horizonHours(%v) = %d, want %d", tt.days, got, tt.want)
		}
	}
}

func TestForecastNamingAndSpacing(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	last := start.Add(47 * time.Hour)
	input := []series.Timeseries{hourlySeries("cpu_usage", start, 48)}

	f := NewForecaster(input, 1, &stubEngine{trends: []float64{5}})
	rep, err := f.Forecast(context.Background())
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}

	forecasts := rep.Forecasts()
	if len(forecasts) != 1 {
		t.Fatalf("expected 1 forecast series, got %d", len(forecasts))
	}
	got := forecasts[0]
	if got.Name() != "cpu_usage_forecast" {
		t.Errorf("forecast name = %q, want cpu_usage_forecast", got.Name())
	}
	if got.Len() != 24 {
		t.Errorf("forecast length = %d, want 24", got.Len())
	}

	for i, p := range got.Table() {
		want := last.Add(time.Duration(i+1) * time.Hour)
		if !p.T.Equal(want) {
			t.Fatalf("point %d at %v, want %v", i, p.T, want)
		}
		if p.V != 5 {
			t.Errorf("point %d value = %v, want 5", i, p.V)
		}
	}
}

func TestForecastAveragesTrendAcrossSeries(t *testing.T) {
	// Two aligned series with constant trends 10 and 20 over a 24 hour
	// horizon: each hour bucket collects one prediction per series, so the
	// cross-series mean is 15 everywhere.
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	input := []series.Timeseries{
		hourlySeries("cpu", start, 48),
		hourlySeries("mem", start, 48),
	}

	f := NewForecaster(input, 1, &stubEngine{trends: []float64{10, 20}})
	rep, err := f.Forecast(context.Background())
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}

	hourly := rep.HourlyTrend()
	if hourly.Len() != 24 {
		t.Fatalf("hourly buckets = %d, want 24", hourly.Len())
	}
	for bucket, v := range hourly.Buckets() {
		if math.Abs(v-15) > 1e-9 {
			t.Errorf("hourly bucket %s = %v, want 15", bucket, v)
		}
	}

	// Weekday buckets sum one trend contribution per covered hour; across
	// the whole horizon the averaged sums still total 15 per hour.
	var total float64
	for _, v := range rep.DailyTrend().Buckets() {
		total += v
	}
	if math.Abs(total-15*24) > 1e-9 {
		t.Errorf("daily trend total = %v, want %v", total, 15.0*24)
	}
}

func TestForecastEmptyInput(t *testing.T) {
	f := NewForecaster(nil, 7, &stubEngine{trends: []float64{1}})
	_, err := f.Forecast(context.Background())

	var rerr *ReportError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *ReportError, got %T (%v)", err, err)
	}
	if rerr.Reporter != "Forecaster/stub" {
		t.Errorf("reporter = %q, want Forecaster/stub", rerr.Reporter)
	}
	if !strings.Contains(rerr.Error(), "no input series to analyze") {
		t.Errorf("error %q missing cause", rerr.Error())
	}
}

func TestForecastWrapsFitFailure(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	input := []series.Timeseries{hourlySeries("cpu", start, 4)}

	f := NewForecaster(input, 7, &stubEngine{err: errors.New("singular matrix")})
	_, err := f.Forecast(context.Background())

	var rerr *ReportError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *ReportError, got %T", err)
	}
	if !strings.Contains(rerr.Err, "fit cpu") || !strings.Contains(rerr.Err, "singular matrix") {
		t.Errorf("wrapped message = %q", rerr.Err)
	}
	if rerr.ExecMessage() != rerr.Error() {
		t.Errorf("ExecMessage diverges from Error")
	}
}

func TestForecasterRunsAsTask(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	input := []series.Timeseries{hourlySeries("cpu", start, 24)}

	f := NewForecaster(input, 1, &stubEngine{trends: []float64{1}})
	rep, err := task.Run[report.Report](f)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !rep.ContainsForecasts() {
		t.Errorf("report missing forecasts")
	}
}

func TestForecasterDefaults(t *testing.T) {
	f := NewForecaster(nil, 0, nil)
	if f.periods != 168 {
		t.Errorf("default periods = %d, want 168", f.periods)
	}
	if f.engine.Name() != "seasonal_trend" {
		t.Errorf("default engine = %q, want seasonal_trend", f.engine.Name())
	}
}
