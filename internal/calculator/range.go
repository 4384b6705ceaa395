package calculator

import (
	"errors"
	"math"

	"StockPulse/internal/model"
)

// PriceRange scans bars and returns the highest High and lowest Low.
func PriceRange(bars []model.OHLCV) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no daily bars provided")
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low, nil
}
