// Package forecast runs multi-day autoregressive inference over a normalized
// price window using an externally trained model.
package forecast

import "context"

// Model predicts the next scaled value from a flattened (1, timeStep, 1)
// batch.
type Model interface {
	PredictOne(ctx context.Context, batch []float64) (float64, error)
}

// Loader resolves the trained model for a ticker. A ticker without an artifact
// fails with ModelNotFound.
type Loader interface {
	Load(ctx context.Context, ticker string) (Model, error)
}

// ModelFunc adapts a plain function to Model.
type ModelFunc func(ctx context.Context, batch []float64) (float64, error)

// PredictOne calls f.
func (f ModelFunc) PredictOne(ctx context.Context, batch []float64) (float64, error) {
	return f(ctx, batch)
}
