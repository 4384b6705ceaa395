package model

import "time"

// DateLayout is the canonical on-disk date format.
const DateLayout = "2006-01-02"

// CanonicalColumns is the header every persisted series uses.
var CanonicalColumns = []string{"Date", "Open", "High", "Low", "Close", "Volume"}

// OHLCV represents a single daily bar.
type OHLCV struct {
	Time   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// PriceSeries is the daily history of one ticker, ordered by date.
type PriceSeries struct {
	Symbol string  `json:"symbol"`
	Bars   []OHLCV `json:"bars"`
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Last returns the most recent bar. ok is false for an empty series.
func (s *PriceSeries) Last() (OHLCV, bool) {
	if s.Len() == 0 {
		return OHLCV{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Column extracts a named feature column (case-sensitive canonical name).
func (s *PriceSeries) Column(feature string) ([]float64, bool) {
	var pick func(OHLCV) float64
	switch feature {
	case "Open":
		pick = func(b OHLCV) float64 { return b.Open }
	case "High":
		pick = func(b OHLCV) float64 { return b.High }
	case "Low":
		pick = func(b OHLCV) float64 { return b.Low }
	case "Close":
		pick = func(b OHLCV) float64 { return b.Close }
	case "Volume":
		pick = func(b OHLCV) float64 { return float64(b.Volume) }
	default:
		return nil, false
	}
	out := make([]float64, s.Len())
	for i := 0; i < s.Len(); i++ {
		out[i] = pick(s.Bars[i])
	}
	return out, true
}

// Closes returns the close column.
func (s *PriceSeries) Closes() []float64 {
	c, _ := s.Column("Close")
	return c
}

// RawTable is an untyped table as produced by a data source, before
// normalization into the canonical schema.
type RawTable struct {
	Source string
	Rows   [][]string
}

// DateOf truncates t to its calendar date, expressed as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
