package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"

	"StockPulse/internal/apperr"
	"StockPulse/internal/model"
	"StockPulse/internal/window"
)

// DefaultDays is the forecast horizon in trading days.
const DefaultDays = 7

// Rollout forecasts days values. Each prediction is appended to the input
// batch while the oldest value is evicted, so the model always sees exactly
// TimeStep values. The rollout stays in scaled space and inverts once at the
// end. Any model failure aborts the whole rollout with InferenceError; a
// cancelled ctx aborts it with ctx.Err().
func Rollout(ctx context.Context, ticker string, m Model, w *model.NormalizedWindow, days int) (model.ForecastResult, error) {
	if days <= 0 {
		return nil, apperr.InvalidInput("forecast", fmt.Sprintf("days must be positive, got %d", days))
	}
	if len(w.Values) == 0 || len(w.Values) != w.TimeStep {
		return nil, apperr.InvalidInput("forecast", fmt.Sprintf("window has %d values, want %d", len(w.Values), w.TimeStep))
	}

	batch := make([]float64, len(w.Values))
	copy(batch, w.Values)

	scaled := make([]float64, 0, days)
	for step := 1; step <= days; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		y, err := m.PredictOne(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, apperr.InferenceError("forecast", ticker, step, err)
		}
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, apperr.InferenceError("forecast", ticker, step, errors.New("model returned a non-finite value"))
		}
		scaled = append(scaled, y)

		copy(batch, batch[1:])
		batch[len(batch)-1] = y
	}

	return model.ForecastResult(window.Inverse(w.Scale, scaled)), nil
}
