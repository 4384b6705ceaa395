// Package window turns a price series into the fixed-length normalized input
// the forecasting model consumes.
package window

import (
	"fmt"

	"StockPulse/internal/apperr"
	"StockPulse/internal/model"
)

const (
	DefaultTimeStep = 60
	DefaultFeature  = "Close"
)

// Build extracts feature from series, fits a min-max scale over the whole
// column, and returns the trailing timeStep scaled values. A series shorter
// than timeStep fails with InsufficientHistory.
func Build(series *model.PriceSeries, feature string, timeStep int) (*model.NormalizedWindow, error) {
	if timeStep <= 0 {
		return nil, apperr.InvalidInput("window", fmt.Sprintf("time step must be positive, got %d", timeStep))
	}
	column, ok := series.Column(feature)
	if !ok {
		return nil, apperr.InvalidInput("window", fmt.Sprintf("unknown feature %q", feature))
	}
	if len(column) < timeStep {
		return nil, apperr.InsufficientHistory("window", series.Symbol, len(column), timeStep)
	}

	sc := Fit(column)
	scaled := Transform(sc, column)
	values := make([]float64, timeStep)
	copy(values, scaled[len(scaled)-timeStep:])

	return &model.NormalizedWindow{
		Values:   values,
		Scale:    sc,
		TimeStep: timeStep,
		Feature:  feature,
	}, nil
}
