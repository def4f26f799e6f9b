package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xscopehub/capmon/internal/report"
	"github.com/xscopehub/capmon/internal/series"
	"github.com/xscopehub/capmon/internal/task"
)

// Reporter produces a forward-looking analysis Report and is executable as a
// task.
type Reporter interface {
	task.Task[report.Report]
	Report(ctx context.Context) (report.Report, error)
}

// ReportError is the only failure shape surfaced by a Reporter. It carries
// the originating implementation identity and the underlying message; the
// original error type is discarded.
type ReportError struct {
	Reporter string
	Err      string
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("report failed: %s (reporter: %s)", e.Err, e.Reporter)
}

// ExecMessage implements task.ExecError.
func (e *ReportError) ExecMessage() string { return e.Error() }

// Forecaster fits a trend-decomposition model per input series and reduces
// the per-series trend curves into weekday and hour-of-day aggregates. The
// forecast horizon is always expressed as whole hours regardless of input
// density.
type Forecaster struct {
	input   []series.Timeseries
	periods int
	engine  Engine
}

// NewForecaster builds a Forecaster over the given series. A nil engine
// falls back to SeasonalTrendEngine; non-positive forecast days fall back
// to 7.
func NewForecaster(input []series.Timeseries, forecastDays float64, engine Engine) *Forecaster {
	if forecastDays <= 0 {
		forecastDays = 7
	}
	if engine == nil {
		engine = SeasonalTrendEngine{}
	}
	return &Forecaster{
		input:   input,
		periods: horizonHours(forecastDays),
		engine:  engine,
	}
}

// horizonHours converts a calendar-day horizon into hourly bucket counts,
// rounding fractional days to whole hours.
func horizonHours(days float64) int {
	return int(math.Round(days * 86400 / 3600))
}

// Execute implements task.Task by delegating to Report.
func (f *Forecaster) Execute(ctx context.Context) (report.Report, error) {
	return f.Report(ctx)
}

// Report implements Reporter by delegating to Forecast.
func (f *Forecaster) Report(ctx context.Context) (report.Report, error) {
	return f.Forecast(ctx)
}

// Forecast runs the analysis, converting any failure into a *ReportError.
func (f *Forecaster) Forecast(ctx context.Context) (report.Report, error) {
	rep, err := f.analyze(ctx)
	if err != nil {
		return report.Report{}, &ReportError{
			Reporter: "Forecaster/" + f.engine.Name(),
			Err:      err.Error(),
		}
	}
	return rep, nil
}

// analyze performs the fan-out over input series followed by the
// cross-series reduction. A failure on any one series fails the whole pass.
func (f *Forecaster) analyze(ctx context.Context) (report.Report, error) {
	if len(f.input) == 0 {
		return report.Report{}, errors.New("no input series to analyze")
	}

	forecasts := make([]series.Timeseries, 0, len(f.input))
	daily := make([]map[string]float64, 0, len(f.input))
	hourly := make([]map[string]float64, 0, len(f.input))

	for _, in := range f.input {
		if err := ctx.Err(); err != nil {
			return report.Report{}, err
		}

		table := in.Table()
		model, err := f.engine.Fit(table)
		if err != nil {
			return report.Report{}, fmt.Errorf("fit %s: %w", in.Name(), err)
		}

		future := model.Predict(f.horizon(table))
		forecasts = append(forecasts, forecastSeries(in.Name(), future))

		d, h := bucketTrendSums(future)
		daily = append(daily, d)
		hourly = append(hourly, h)
	}

	return report.New(
		forecasts,
		report.NewTrend("daily_trend", meanByBucket(daily)),
		report.NewTrend("hourly_trend", meanByBucket(hourly)),
	), nil
}

// horizon produces the future timestamps: hourly buckets starting one hour
// after the latest input sample.
func (f *Forecaster) horizon(table []series.Point) []time.Time {
	last := table[len(table)-1].T
	out := make([]time.Time, f.periods)
	for i := range out {
		out[i] = last.Add(time.Duration(i+1) * time.Hour)
	}
	return out
}

// forecastSeries builds the forecast Timeseries holding the predicted values
// (not the trend component) at their future timestamps.
func forecastSeries(name string, preds []Prediction) series.Timeseries {
	points := make([]series.Point, 0, len(preds))
	for _, p := range preds {
		points = append(points, series.Point{T: p.T, V: p.Value})
	}
	return series.FromTable(name+"_forecast", points)
}

// bucketTrendSums reduces one forecast's trend component to per-weekday and
// per-hour sums over the horizon.
func bucketTrendSums(preds []Prediction) (daily, hourly map[string]float64) {
	daily = make(map[string]float64)
	hourly = make(map[string]float64)
	for _, p := range preds {
		t := p.T.UTC()
		daily[t.Weekday().String()] += p.Trend
		hourly[report.HourKey(t.Hour())] += p.Trend
	}
	return daily, hourly
}

// meanByBucket reduces per-series bucket sums across all series by
// arithmetic mean, aligned by bucket key.
func meanByBucket(perSeries []map[string]float64) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]float64)
	for _, buckets := range perSeries {
		for k, v := range buckets {
			sums[k] += v
			counts[k]++
		}
	}
	out := make(map[string]float64, len(sums))
	for k, v := range sums {
		out[k] = v / counts[k]
	}
	return out
}
