package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"StockPulse/internal/model"
	"StockPulse/internal/recorder"
)

// Money renders a price as dollars with two decimals.
func Money(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

// Percent renders a signed percentage with two decimals.
func Percent(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	s := d.StringFixed(2)
	if d.IsPositive() {
		s = "+" + s
	}
	return s + "%"
}

func actionIcon(a model.Action) string {
	switch a {
	case model.ActionBuy:
		return "🟢"
	case model.ActionSell:
		return "🔻"
	default:
		return "🤝"
	}
}

// ForecastReport is the data rendered by FormatForecastReport.
type ForecastReport struct {
	Ticker            string
	RunID             string
	LastDate          time.Time
	RecentUnavailable bool
	Summary           model.Summary
	Recommendation    model.Recommendation
	Table             []model.PredictionDay
}

// FormatForecastReport formats a forecast run into a Telegram message.
func FormatForecastReport(r ForecastReport) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>%s 7-day forecast</b> | data to %s\n\n",
		html.EscapeString(r.Ticker), r.LastDate.Format(model.DateLayout)))
	if r.RecentUnavailable {
		b.WriteString("⚠️ Recent data unavailable, forecast uses stored history only\n\n")
	}

	rec := r.Recommendation
	b.WriteString(fmt.Sprintf("%s <b>%s</b>: %s\n", actionIcon(rec.Action), rec.Action, rec.Rationale))
	b.WriteString(fmt.Sprintf("Last price: %s\n", Money(r.Summary.LastPrice)))
	b.WriteString(fmt.Sprintf("Predicted (%d days): %s\n", len(r.Table), Money(r.Summary.PredictedPrice)))
	b.WriteString(fmt.Sprintf("Potential return: %s\n", Percent(r.Summary.ReturnPct)))
	b.WriteString(fmt.Sprintf("Range: %s - %s | volatility %s%%\n\n",
		Money(r.Summary.MinPrice), Money(r.Summary.MaxPrice), decimal.NewFromFloat(r.Summary.Volatility).StringFixed(2)))

	b.WriteString("📈 <b>Daily outlook:</b>\n")
	for _, d := range r.Table {
		b.WriteString(fmt.Sprintf("  %s %s  %s  %s %s\n",
			d.Label, d.Date.Format("Mon 01-02"), Money(d.Price), Percent(d.ChangePct), actionIcon(d.Action)))
	}
	return b.String()
}

// FormatFailure formats a terminal pipeline failure.
func FormatFailure(ticker string, err error) string {
	return fmt.Sprintf("❌ <b>%s</b> forecast failed: %s", html.EscapeString(ticker), html.EscapeString(err.Error()))
}

// FormatRunHistory formats recorded runs, newest first.
func FormatRunHistory(ticker string, runs []recorder.RunRecord) string {
	if len(runs) == 0 {
		return fmt.Sprintf("No recorded runs for %s", html.EscapeString(ticker))
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗂 <b>%s recent runs</b>\n\n", html.EscapeString(ticker)))
	for _, r := range runs {
		ts := r.StartedAt.Format("2006-01-02 15:04")
		if r.Outcome != recorder.OutcomeOK {
			b.WriteString(fmt.Sprintf("%s  ❌ %s\n", ts, r.Outcome))
			continue
		}
		b.WriteString(fmt.Sprintf("%s  %s %s %s (last %s)\n",
			ts, actionIcon(r.Action), r.Action, Percent(r.ReturnPct), Money(r.LastClose)))
	}
	return b.String()
}

// FormatMonthlyStats formats one month of history.
func FormatMonthlyStats(ticker string, st *model.MonthlyStats) string {
	var b strings.Builder
	month := time.Month(st.Month).String()
	b.WriteString(fmt.Sprintf("🗓 <b>%s %s %d</b> (%d trading days)\n\n", html.EscapeString(ticker), month, st.Year, st.Rows))
	b.WriteString(fmt.Sprintf("Period change: %s (%s)\n", Percent(st.PriceChangePct), Money(st.PriceChange)))
	b.WriteString(fmt.Sprintf("Range: %s - %s\n", Money(st.Lowest), Money(st.Highest)))
	b.WriteString(fmt.Sprintf("Average close: %s\n", Money(st.Average)))
	b.WriteString(fmt.Sprintf("Volatility: %s%%\n", decimal.NewFromFloat(st.Volatility).StringFixed(2)))
	return b.String()
}

// FormatHelp lists the chat commands.
func FormatHelp(tickers []string) string {
	return "Available commands:\n" +
		"• /predict TICKER\n" +
		"• /history TICKER\n" +
		"• /monthly TICKER YYYY-MM\n" +
		"• /tickers\n\n" +
		"Tickers: " + strings.Join(tickers, ", ")
}
