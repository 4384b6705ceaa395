package model

import "time"

// Action is the discrete recommendation.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Severity encodes how strong a recommendation is. Larger magnitude means a
// stronger signal; the sign follows the direction of the move.
type Severity int

const (
	SeverityStrongDown   Severity = -2
	SeverityModerateDown Severity = -1
	SeverityNeutral      Severity = 0
	SeverityModerateUp   Severity = 1
	SeverityStrongUp     Severity = 2
)

// Scale is a fitted min-max mapping between raw prices and [0,1].
type Scale struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// NormalizedWindow is the model input: the trailing TimeStep scaled values of
// one feature, plus the scale fit on the whole series.
type NormalizedWindow struct {
	Values   []float64 `json:"values"`
	Scale    Scale     `json:"scale"`
	TimeStep int       `json:"time_step"`
	Feature  string    `json:"feature"`
}

// Shape returns the tensor shape the model expects: one sample, TimeStep
// steps, one channel.
func (w *NormalizedWindow) Shape() [3]int {
	return [3]int{1, len(w.Values), 1}
}

// ForecastResult holds raw-scale predicted closes, one per future trading day.
type ForecastResult []float64

// Final returns the last forecast value.
func (f ForecastResult) Final() float64 {
	return f[len(f)-1]
}

// Recommendation is the output of the advisor.
type Recommendation struct {
	Action    Action   `json:"action"`
	Rationale string   `json:"rationale"`
	Severity  Severity `json:"severity"`
	ReturnPct float64  `json:"return_pct"`
}

// Summary holds headline statistics over a forecast.
type Summary struct {
	LastPrice      float64 `json:"last_price"`
	PredictedPrice float64 `json:"predicted_price"`
	ReturnPct      float64 `json:"return_pct"`
	MinPrice       float64 `json:"min_price"`
	MaxPrice       float64 `json:"max_price"`
	Volatility     float64 `json:"volatility"`
	Trend          string  `json:"trend"` // "positive" or "negative"
}

// PredictionDay is one row of the per-day forecast table.
type PredictionDay struct {
	Label     string    `json:"label"`
	Date      time.Time `json:"date"`
	Price     float64   `json:"price"`
	ChangePct float64   `json:"change_pct"`
	Action    Action    `json:"action"`
}

// MonthlyStats summarizes one calendar month of history.
type MonthlyStats struct {
	Year           int     `json:"year"`
	Month          int     `json:"month"`
	Rows           int     `json:"rows"`
	FirstClose     float64 `json:"first_close"`
	LastClose      float64 `json:"last_close"`
	PriceChange    float64 `json:"price_change"`
	PriceChangePct float64 `json:"price_change_pct"`
	Lowest         float64 `json:"lowest"`
	Highest        float64 `json:"highest"`
	Average        float64 `json:"average"`
	Volatility     float64 `json:"volatility"`
}

// Period is a year/month pair present in a series.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}
