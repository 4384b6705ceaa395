package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"StockPulse/internal/apperr"
)

// DefaultTickers is the ticker set served when none is configured.
var DefaultTickers = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META", "TSLA"}

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// NormalizeTicker upper-cases s and checks it is a plausible ticker symbol.
func NormalizeTicker(s string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	if !tickerPattern.MatchString(t) {
		return "", apperr.InvalidInput("ticker", fmt.Sprintf("invalid ticker %q", s))
	}
	return t, nil
}
