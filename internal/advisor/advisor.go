// Package advisor turns a price forecast into a buy/sell/hold recommendation
// and the headline statistics shown alongside it.
package advisor

import (
	"fmt"
	"math"

	"StockPulse/internal/apperr"
	"StockPulse/internal/model"
)

type tier struct {
	Threshold float64
	Severity  model.Severity
	Action    model.Action
	Rationale string
}

// upTiers apply when the return is strictly above Threshold, strongest first.
var upTiers = []tier{
	{5, model.SeverityStrongUp, model.ActionBuy, "Strong upward trend predicted over the next week"},
	{2, model.SeverityModerateUp, model.ActionBuy, "Moderate upward trend predicted"},
}

// downTiers apply when the return is strictly below Threshold, strongest first.
var downTiers = []tier{
	{-5, model.SeverityStrongDown, model.ActionSell, "Strong downward trend predicted over the next week"},
	{-2, model.SeverityModerateDown, model.ActionSell, "Moderate downward trend predicted"},
}

// neutral is the recommendation when no tier matches.
var neutral = tier{0, model.SeverityNeutral, model.ActionHold, "No significant price movement predicted"}

// ReturnPct is the percent change from lastPrice to the final forecast value.
func ReturnPct(forecast model.ForecastResult, lastPrice float64) float64 {
	return (forecast.Final() - lastPrice) / lastPrice * 100
}

func mapTier(ret float64) tier {
	for _, t := range upTiers {
		if ret > t.Threshold {
			return t
		}
	}
	for _, t := range downTiers {
		if ret < t.Threshold {
			return t
		}
	}
	return neutral
}

// Recommend classifies the forecast against the last known close.
func Recommend(forecast model.ForecastResult, lastPrice float64) (model.Recommendation, error) {
	if err := checkInputs(forecast, lastPrice); err != nil {
		return model.Recommendation{}, err
	}
	ret := ReturnPct(forecast, lastPrice)
	t := mapTier(ret)
	return model.Recommendation{
		Action:    t.Action,
		Rationale: t.Rationale,
		Severity:  t.Severity,
		ReturnPct: ret,
	}, nil
}

func checkInputs(forecast model.ForecastResult, lastPrice float64) error {
	if len(forecast) == 0 {
		return apperr.InvalidInput("advise", "empty forecast")
	}
	if lastPrice <= 0 || math.IsNaN(lastPrice) || math.IsInf(lastPrice, 0) {
		return apperr.InvalidInput("advise", fmt.Sprintf("last price must be positive, got %v", lastPrice))
	}
	return nil
}
