package advisor

import (
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"StockPulse/internal/model"
)

// DayActionThreshold is the per-day change, in percent, beyond which a
// prediction table row is marked Buy or Sell.
const DayActionThreshold = 1.0

// Summarize computes headline statistics over the forecast. Volatility is the
// population standard deviation over the mean, in percent.
func Summarize(forecast model.ForecastResult, lastPrice float64) (model.Summary, error) {
	if err := checkInputs(forecast, lastPrice); err != nil {
		return model.Summary{}, err
	}
	mean, variance := stat.PopMeanVariance(forecast, nil)
	var volatility float64
	if mean != 0 {
		volatility = math.Sqrt(variance) / mean * 100
	}

	trend := "negative"
	if forecast.Final() > lastPrice {
		trend = "positive"
	}

	return model.Summary{
		LastPrice:      lastPrice,
		PredictedPrice: forecast.Final(),
		ReturnPct:      ReturnPct(forecast, lastPrice),
		MinPrice:       floats.Min(forecast),
		MaxPrice:       floats.Max(forecast),
		Volatility:     volatility,
		Trend:          trend,
	}, nil
}

// NextTradingDay returns the first Monday-Friday date after d.
func NextTradingDay(d time.Time) time.Time {
	next := d.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// PredictionTable lays the forecast out one row per trading day after
// lastDate, each compared to lastPrice.
func PredictionTable(lastDate time.Time, lastPrice float64, forecast model.ForecastResult) ([]model.PredictionDay, error) {
	if err := checkInputs(forecast, lastPrice); err != nil {
		return nil, err
	}
	rows := make([]model.PredictionDay, 0, len(forecast))
	date := model.DateOf(lastDate)
	for i, price := range forecast {
		date = NextTradingDay(date)
		change := (price - lastPrice) / lastPrice * 100

		action := model.ActionHold
		switch {
		case change > DayActionThreshold:
			action = model.ActionBuy
		case change < -DayActionThreshold:
			action = model.ActionSell
		}

		rows = append(rows, model.PredictionDay{
			Label:     dayLabel(i + 1),
			Date:      date,
			Price:     price,
			ChangePct: change,
			Action:    action,
		})
	}
	return rows, nil
}

func dayLabel(n int) string {
	return "Day " + strconv.Itoa(n)
}
