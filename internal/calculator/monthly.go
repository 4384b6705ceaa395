// Package calculator computes descriptive statistics over stored price
// history.
package calculator

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"StockPulse/internal/apperr"
	"StockPulse/internal/model"
)

// Volatility is the population standard deviation of values over their mean,
// in percent. It is 0 for an empty slice or a zero mean.
func Volatility(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean, variance := stat.PopMeanVariance(values, nil)
	if mean == 0 {
		return 0
	}
	return math.Sqrt(variance) / mean * 100
}

// MonthBars returns the bars of series dated in the given month, in date order.
func MonthBars(series *model.PriceSeries, year, month int) []model.OHLCV {
	var out []model.OHLCV
	for i := 0; i < series.Len(); i++ {
		b := series.Bars[i]
		if b.Time.Year() == year && int(b.Time.Month()) == month {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// MonthlyStats summarizes one calendar month. A month without rows is NoData.
func MonthlyStats(series *model.PriceSeries, year, month int) (*model.MonthlyStats, error) {
	if month < 1 || month > 12 {
		return nil, apperr.InvalidInput("monthly stats", fmt.Sprintf("month must be 1-12, got %d", month))
	}
	bars := MonthBars(series, year, month)
	if len(bars) == 0 {
		return nil, apperr.NoData("monthly stats", series.Symbol, fmt.Sprintf("no rows for %04d-%02d", year, month))
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	high, low, err := PriceRange(bars)
	if err != nil {
		return nil, err
	}

	first, last := closes[0], closes[len(closes)-1]
	st := &model.MonthlyStats{
		Year:        year,
		Month:       month,
		Rows:        len(bars),
		FirstClose:  first,
		LastClose:   last,
		PriceChange: last - first,
		Lowest:      low,
		Highest:     high,
		Average:     stat.Mean(closes, nil),
		Volatility:  Volatility(closes),
	}
	if first != 0 {
		st.PriceChangePct = (last - first) / first * 100
	}
	return st, nil
}

// AvailablePeriods lists the distinct year/month pairs in series, oldest
// first.
func AvailablePeriods(series *model.PriceSeries) []model.Period {
	seen := make(map[model.Period]bool)
	var out []model.Period
	for i := 0; i < series.Len(); i++ {
		t := series.Bars[i].Time
		p := model.Period{Year: t.Year(), Month: int(t.Month())}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}
