package forecast

import (
	"errors"
	"time"

	"github.com/xscopehub/capmon/internal/series"
)

// Prediction is one modeled future point: the raw predicted value and the
// smooth trend component underneath it.
type Prediction struct {
	T     time.Time
	Value float64
	Trend float64
}

// Model is a fitted per-series model able to predict at future times.
type Model interface {
	Predict(times []time.Time) []Prediction
}

// Engine fits a trend-decomposition model to one series table. It isolates
// the statistical method so the Forecaster's aggregation logic stays
// independent of it.
type Engine interface {
	Name() string
	Fit(points []series.Point) (Model, error)
}

// SeasonalTrendEngine fits a least-squares linear trend and estimates
// hour-of-day and weekday seasonal offsets from the detrended residuals.
type SeasonalTrendEngine struct{}

// Name identifies the engine in report errors.
func (SeasonalTrendEngine) Name() string { return "seasonal_trend" }

// Fit builds a model from the time-ordered series table.
func (SeasonalTrendEngine) Fit(points []series.Point) (Model, error) {
	if len(points) == 0 {
		return nil, errors.New("cannot fit model on empty series")
	}

	t0 := points[0].T

	// least squares over hours since the first sample
	var sumX, sumY, sumXY, sumX2 float64
	for _, p := range points {
		x := p.T.Sub(t0).Hours()
		sumX += x
		sumY += p.V
		sumXY += x * p.V
		sumX2 += x * x
	}
	n := float64(len(points))

	var slope, intercept float64
	if denom := n*sumX2 - sumX*sumX; denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
		intercept = (sumY - slope*sumX) / n
	} else {
		intercept = sumY / n
	}

	m := &seasonalTrendModel{t0: t0, slope: slope, intercept: intercept}

	var hourSum, hourCount [24]float64
	var daySum, dayCount [7]float64
	for _, p := range points {
		x := p.T.Sub(t0).Hours()
		resid := p.V - (intercept + slope*x)
		t := p.T.UTC()
		hourSum[t.Hour()] += resid
		hourCount[t.Hour()]++
		daySum[int(t.Weekday())] += resid
		dayCount[int(t.Weekday())]++
	}
	for h := 0; h < 24; h++ {
		if hourCount[h] > 0 {
			m.hourly[h] = hourSum[h] / hourCount[h]
		}
	}
	for d := 0; d < 7; d++ {
		if dayCount[d] > 0 {
			m.weekday[d] = daySum[d] / dayCount[d]
		}
	}

	return m, nil
}

type seasonalTrendModel struct {
	t0        time.Time
	slope     float64
	intercept float64
	hourly    [24]float64
	weekday   [7]float64
}

// Predict evaluates the model at the given times. The predicted value is the
// trend plus the seasonal offsets for the hour and weekday of the bucket.
func (m *seasonalTrendModel) Predict(times []time.Time) []Prediction {
	out := make([]Prediction, 0, len(times))
	for _, ts := range times {
		x := ts.Sub(m.t0).Hours()
		trend := m.intercept + m.slope*x
		t := ts.UTC()
		out = append(out, Prediction{
			T:     ts,
			Value: trend + m.hourly[t.Hour()] + m.weekday[int(t.Weekday())],
			Trend: trend,
		})
	}
	return out
}
