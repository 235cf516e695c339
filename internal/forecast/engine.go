// Package forecast fits a deterministic linear trend to a historical
// cost or volume series and extrapolates it with confidence intervals.
//
// The model is ordinary least squares against the period index. The
// interval half-width per forecasted period is
//
//	z * se * sqrt(1 + 1/n + (t - x̄)² / Sxx)
//
// where se is the residual standard error of the fit. Beyond the sample the
// width grows with forecast distance, so uncertainty is monotonically
// non-decreasing over the horizon. No randomness, no external model calls:
// the same series and horizon always produce the same forecast.
package forecast

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/cms-analytics-server/internal/domain"
)

// Engine produces point forecasts with confidence intervals.
type Engine struct {
	logger *logrus.Logger
	cfg    domain.AnalyticsConfig
}

// NewEngine creates a forecast engine.
func NewEngine(logger *logrus.Logger, cfg domain.AnalyticsConfig) *Engine {
	return &Engine{logger: logger, cfg: cfg}
}

// Forecast extrapolates the series for the requested number of future
// periods. Forecast periods are contiguous and strictly increasing,
// starting immediately after the last historical period.
//
// Fails with ErrInsufficientHistory when the series is shorter than the
// configured minimum, and with ErrMalformedSeries when periods are
// duplicated or out of order.
func (e *Engine) Forecast(id domain.SeriesID, history []domain.SeriesPoint, horizon int) (*domain.ForecastResult, error) {
	if horizon < 1 || horizon > e.cfg.MaxHorizon {
		return nil, fmt.Errorf("forecast %s: horizon %d outside [1,%d]", id, horizon, e.cfg.MaxHorizon)
	}
	if len(history) < e.cfg.MinObservations {
		return nil, fmt.Errorf("forecast %s: %d observations, need %d: %w",
			id, len(history), e.cfg.MinObservations, domain.ErrInsufficientHistory)
	}
	for i := 1; i < len(history); i++ {
		if history[i].Period.Index() <= history[i-1].Period.Index() {
			return nil, fmt.Errorf("forecast %s: period %s after %s: %w",
				id, history[i].Period, history[i-1].Period, domain.ErrMalformedSeries)
		}
	}

	fit := fitTrend(history)
	se := fit.residualSE
	if floor := e.cfg.ResidualFloorPct * fit.meanAbsValue; se < floor {
		// A perfect or near-perfect fit would otherwise collapse the
		// interval to zero width, overstating certainty.
		se = floor
	}

	n := float64(len(history))
	result := &domain.ForecastResult{
		SeriesID: id,
		History:  history,
		Points:   make([]domain.ForecastPoint, 0, horizon),
	}

	period := history[len(history)-1].Period
	for h := 0; h < horizon; h++ {
		period = period.Next()
		x := float64(period.Index())
		estimate := fit.intercept + fit.slope*x

		halfWidth := 0.0
		if se > 0 {
			halfWidth = e.cfg.ConfidenceZ * se * math.Sqrt(1+1/n+(x-fit.meanX)*(x-fit.meanX)/fit.sxx)
		}

		result.Points = append(result.Points, domain.ForecastPoint{
			Period:   period,
			Estimate: estimate,
			Lower:    estimate - halfWidth,
			Upper:    estimate + halfWidth,
		})
	}

	e.logger.WithFields(logrus.Fields{
		"series":  id.String(),
		"n":       len(history),
		"horizon": horizon,
		"slope":   fit.slope,
		"se":      se,
	}).Debug("Fitted linear trend forecast")

	return result, nil
}

// trendFit holds the OLS fit of value against period index.
type trendFit struct {
	slope        float64
	intercept    float64
	residualSE   float64
	meanX        float64
	sxx          float64
	meanAbsValue float64
}

func fitTrend(history []domain.SeriesPoint) trendFit {
	n := float64(len(history))

	var sumX, sumY, sumAbsY float64
	for _, p := range history {
		sumX += float64(p.Period.Index())
		sumY += p.Value
		sumAbsY += math.Abs(p.Value)
	}
	meanX := sumX / n
	meanY := sumY / n

	var sxx, sxy float64
	for _, p := range history {
		dx := float64(p.Period.Index()) - meanX
		sxx += dx * dx
		sxy += dx * (p.Value - meanY)
	}

	slope := sxy / sxx // sxx > 0: periods are strictly increasing
	intercept := meanY - slope*meanX

	var sse float64
	for _, p := range history {
		r := p.Value - (intercept + slope*float64(p.Period.Index()))
		sse += r * r
	}
	residualSE := 0.0
	if n > 2 {
		residualSE = math.Sqrt(sse / (n - 2))
	}

	return trendFit{
		slope:        slope,
		intercept:    intercept,
		residualSE:   residualSE,
		meanX:        meanX,
		sxx:          sxx,
		meanAbsValue: sumAbsY / n,
	}
}
