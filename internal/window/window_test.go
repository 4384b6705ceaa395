package window

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/apperr"
	"StockPulse/internal/model"
)

func closesSeries(closes []float64) *model.PriceSeries {
	s := &model.PriceSeries{Symbol: "MSFT"}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s.Bars = append(s.Bars, model.OHLCV{Time: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10})
	}
	return s
}

func ramp(n int, from float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(i)
	}
	return out
}

func TestBuild_InsufficientHistory(t *testing.T) {
	for _, n := range []int{0, 1, 59} {
		_, err := Build(closesSeries(ramp(n, 100)), DefaultFeature, DefaultTimeStep)
		require.Error(t, err, "length %d", n)
		assert.True(t, errors.Is(err, apperr.ErrInsufficientHistory))
	}
}

func TestBuild_ExactLengthAndRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{60, 61, 305} {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = 100 + rng.Float64()*50
		}
		w, err := Build(closesSeries(closes), DefaultFeature, DefaultTimeStep)
		require.NoError(t, err)
		require.Len(t, w.Values, DefaultTimeStep)
		assert.Equal(t, [3]int{1, DefaultTimeStep, 1}, w.Shape())
		for _, v := range w.Values {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestBuild_ScaleFitOnWholeSeries(t *testing.T) {
	// the global low and high sit outside the trailing window
	closes := ramp(100, 100)
	closes[0] = 10
	closes[10] = 1000

	w, err := Build(closesSeries(closes), DefaultFeature, DefaultTimeStep)
	require.NoError(t, err)
	assert.Equal(t, model.Scale{Min: 10, Max: 1000}, w.Scale)
	assert.InDelta(t, (199.0-10)/990, w.Values[DefaultTimeStep-1], 1e-12)
	assert.InDelta(t, (140.0-10)/990, w.Values[0], 1e-12)
}

func TestBuild_OtherFeature(t *testing.T) {
	w, err := Build(closesSeries(ramp(60, 100)), "High", DefaultTimeStep)
	require.NoError(t, err)
	assert.Equal(t, model.Scale{Min: 101, Max: 160}, w.Scale)
	assert.Equal(t, "High", w.Feature)
}

func TestBuild_InvalidArguments(t *testing.T) {
	_, err := Build(closesSeries(ramp(60, 1)), "Adj", DefaultTimeStep)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

	_, err = Build(closesSeries(ramp(60, 1)), DefaultFeature, 0)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestScale_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		values := make([]float64, 1+rng.Intn(300))
		for i := range values {
			values[i] = rng.NormFloat64()*40 + 200
		}
		sc := Fit(values)
		back := Inverse(sc, Transform(sc, values))
		for i := range values {
			assert.InDelta(t, values[i], back[i], 1e-9*math.Max(1, math.Abs(values[i])))
		}
	}
}

func TestScale_Degenerate(t *testing.T) {
	sc := Fit([]float64{5, 5, 5})
	assert.Equal(t, []float64{0, 0, 0}, Transform(sc, []float64{5, 5, 5}))
	assert.Equal(t, []float64{5, 5}, Inverse(sc, []float64{0, 0.7}))
}
