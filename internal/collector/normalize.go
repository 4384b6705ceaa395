package collector

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"StockPulse/internal/apperr"
	"StockPulse/internal/model"
)

// MissingColumnPolicy decides what happens when a source lacks one of the
// canonical value columns.
type MissingColumnPolicy string

const (
	// MissingReject fails normalization.
	MissingReject MissingColumnPolicy = "reject"
	// MissingZeroFill substitutes 0 for the absent column on every row.
	MissingZeroFill MissingColumnPolicy = "zero_fill"
)

// dateLabels are header names some sources use for the date column.
var dateLabels = map[string]bool{
	"date":      true,
	"price":     true,
	"datetime":  true,
	"timestamp": true,
}

var dateLayouts = []string{
	model.DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
}

// ParseDate parses the date formats seen in source tables and caches.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.DateOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// ParseNumber parses a numeric cell, tolerating quotes and thousands separators.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

// findHeader returns the index of the header row and of its date column.
func findHeader(rows [][]string) (row, dateCol int, ok bool) {
	for i, r := range rows {
		for j, c := range r {
			if dateLabels[strings.ToLower(strings.TrimSpace(c))] {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// Normalize converts a raw source table into the canonical schema. Metadata
// rows that follow the header are skipped because their date cell does not
// parse; any row with a missing or non-numeric value is dropped. Ordering and
// uniqueness are left to the reconciler.
func Normalize(symbol string, raw *model.RawTable, policy MissingColumnPolicy) (*model.PriceSeries, error) {
	if raw == nil || len(raw.Rows) == 0 {
		return nil, apperr.SourceUnavailable("normalize", symbol, fmt.Errorf("empty table"))
	}
	headerRow, dateCol, ok := findHeader(raw.Rows)
	if !ok {
		return nil, apperr.SourceUnavailable("normalize", symbol, fmt.Errorf("no date header found"))
	}

	index := make(map[string]int)
	for j, c := range raw.Rows[headerRow] {
		name := strings.ToLower(strings.TrimSpace(c))
		if _, dup := index[name]; !dup && j != dateCol {
			index[name] = j
		}
	}
	if _, ok := index["close"]; !ok {
		if j, ok := index["adj close"]; ok {
			index["close"] = j
		}
	}

	wanted := []string{"open", "high", "low", "close", "volume"}
	cols := make([]int, len(wanted))
	for k, name := range wanted {
		j, ok := index[name]
		if !ok {
			if policy != MissingZeroFill {
				return nil, apperr.SourceUnavailable("normalize", symbol, fmt.Errorf("missing column %q", name))
			}
			log.Warn().Str("ticker", symbol).Str("column", name).Msg("column missing from source, zero-filling")
			j = -1
		}
		cols[k] = j
	}

	series := &model.PriceSeries{Symbol: symbol}
	dropped := 0
	for _, r := range raw.Rows[headerRow+1:] {
		bar, ok := parseRow(r, dateCol, cols)
		if !ok {
			dropped++
			continue
		}
		series.Bars = append(series.Bars, bar)
	}

	log.Debug().Str("ticker", symbol).Str("source", raw.Source).
		Int("rows", len(series.Bars)).Int("dropped", dropped).Msg("normalized raw table")
	return series, nil
}

func parseRow(r []string, dateCol int, cols []int) (model.OHLCV, bool) {
	if dateCol >= len(r) {
		return model.OHLCV{}, false
	}
	date, err := ParseDate(r[dateCol])
	if err != nil {
		return model.OHLCV{}, false
	}
	var vals [5]float64
	for k, j := range cols {
		if j < 0 {
			continue
		}
		if j >= len(r) {
			return model.OHLCV{}, false
		}
		v, err := ParseNumber(r[j])
		if err != nil {
			return model.OHLCV{}, false
		}
		vals[k] = v
	}
	return model.OHLCV{
		Time:   date,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: int64(math.Round(vals[4])),
	}, true
}
