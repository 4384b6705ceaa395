package window

import (
	"gonum.org/v1/gonum/floats"

	"StockPulse/internal/model"
)

// Fit returns the min-max scale of values. values must not be empty.
func Fit(values []float64) model.Scale {
	return model.Scale{Min: floats.Min(values), Max: floats.Max(values)}
}

// Transform maps raw values into [0,1] under sc. A degenerate scale (every
// fitted value equal) maps everything to 0.
func Transform(sc model.Scale, values []float64) []float64 {
	out := make([]float64, len(values))
	span := sc.Max - sc.Min
	if span == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - sc.Min) / span
	}
	return out
}

// Inverse maps scaled values back into raw price space under sc.
func Inverse(sc model.Scale, scaled []float64) []float64 {
	out := make([]float64, len(scaled))
	span := sc.Max - sc.Min
	for i, v := range scaled {
		out[i] = v*span + sc.Min
	}
	return out
}
