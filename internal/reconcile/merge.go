// Package reconcile merges the historical snapshot with freshly ingested
// recent data into one deduplicated, date-ordered series.
package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"StockPulse/internal/apperr"
	"StockPulse/internal/model"
)

// OverlapPolicy selects which source keeps its row when both carry the same
// date.
type OverlapPolicy string

const (
	RecentWins     OverlapPolicy = "recent"
	HistoricalWins OverlapPolicy = "historical"
)

// ParseOverlapPolicy converts a config value into an OverlapPolicy. Empty
// means RecentWins.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch OverlapPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RecentWins:
		return RecentWins, nil
	case HistoricalWins:
		return HistoricalWins, nil
	}
	return "", apperr.InvalidInput("reconcile", fmt.Sprintf("unknown overlap policy %q", s))
}

// Stats describes what a merge did. Overlap counts dates present in both
// sources.
type Stats struct {
	Historical int
	Recent     int
	Overlap    int
	Merged     int
}

// Merge combines historical and recent into a new series with unique dates in
// ascending order. Within one source the first row for a date is kept; across
// sources the policy decides. Nil inputs are treated as empty; both empty
// yields NoData.
func Merge(ticker string, historical, recent *model.PriceSeries, policy OverlapPolicy) (*model.PriceSeries, Stats, error) {
	stats := Stats{Historical: historical.Len(), Recent: recent.Len()}
	if stats.Historical == 0 && stats.Recent == 0 {
		return nil, stats, apperr.NoData("merge", ticker, "historical and recent series are both empty")
	}

	primary, secondary := recent, historical
	if policy == HistoricalWins {
		primary, secondary = historical, recent
	}

	byDate := make(map[time.Time]model.OHLCV, stats.Historical+stats.Recent)
	for _, b := range bars(primary) {
		if _, seen := byDate[b.Time]; !seen {
			byDate[b.Time] = b
		}
	}
	counted := make(map[time.Time]bool)
	for _, b := range bars(secondary) {
		if _, seen := byDate[b.Time]; !seen {
			byDate[b.Time] = b
			counted[b.Time] = true
			continue
		}
		if !counted[b.Time] {
			counted[b.Time] = true
			stats.Overlap++
		}
	}

	merged := &model.PriceSeries{Symbol: ticker, Bars: make([]model.OHLCV, 0, len(byDate))}
	for _, b := range byDate {
		merged.Bars = append(merged.Bars, b)
	}
	sort.Slice(merged.Bars, func(i, j int) bool {
		return merged.Bars[i].Time.Before(merged.Bars[j].Time)
	})
	stats.Merged = merged.Len()
	return merged, stats, nil
}

// bars returns s's rows with dates truncated to the calendar day.
func bars(s *model.PriceSeries) []model.OHLCV {
	out := make([]model.OHLCV, s.Len())
	for i := range out {
		out[i] = s.Bars[i]
		out[i].Time = model.DateOf(out[i].Time)
	}
	return out
}
