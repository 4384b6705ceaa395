package freshness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/model"
	"StockPulse/internal/store"
)

var now = time.Date(2025, 6, 11, 15, 30, 0, 0, time.Local)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	return store.New(store.Paths{HistoricalDir: dir, DataDir: dir, CombineDir: dir})
}

func seriesEnding(last time.Time) *model.PriceSeries {
	s := &model.PriceSeries{Symbol: "AAPL"}
	for i := 2; i >= 0; i-- {
		s.Bars = append(s.Bars, model.OHLCV{Time: last.AddDate(0, 0, -i), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
	}
	return s
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

func TestNeedsRefresh_FreshWhenLatestIsYesterday(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.WriteClean("AAPL", seriesEnding(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))))

	refresh, reason, err := NewGate(s).NeedsRefresh("AAPL", now)
	require.NoError(t, err)
	assert.False(t, refresh)
	assert.Equal(t, ReasonFresh, reason)
	assert.True(t, exists(s.CleanPath("AAPL")))
}

func TestNeedsRefresh_StaleIsDeleted(t *testing.T) {
	tests := []struct {
		name   string
		latest time.Time
	}{
		{"two days old", time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)},
		{"same day", time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, s.WriteClean("AAPL", seriesEnding(tt.latest)))

			var invalidated []Reason
			g := NewGate(s)
			g.OnInvalidate = func(_ string, r Reason) { invalidated = append(invalidated, r) }

			refresh, reason, err := g.NeedsRefresh("AAPL", now)
			require.NoError(t, err)
			assert.True(t, refresh)
			assert.Equal(t, ReasonStale, reason)
			assert.False(t, exists(s.CleanPath("AAPL")))
			assert.Equal(t, []Reason{ReasonStale}, invalidated)
		})
	}
}

func TestNeedsRefresh_UnorderedCacheUsesMaxDate(t *testing.T) {
	s := newStore(t)
	series := seriesEnding(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	series.Bars[0], series.Bars[2] = series.Bars[2], series.Bars[0]
	require.NoError(t, s.WriteClean("AAPL", series))

	refresh, _, err := NewGate(s).NeedsRefresh("AAPL", now)
	require.NoError(t, err)
	assert.False(t, refresh)
}

func TestNeedsRefresh_Missing(t *testing.T) {
	s := newStore(t)
	refresh, reason, err := NewGate(s).NeedsRefresh("AAPL", now)
	require.NoError(t, err)
	assert.True(t, refresh)
	assert.Equal(t, ReasonMissing, reason)
}

func TestNeedsRefresh_CorruptIsDeleted(t *testing.T) {
	for name, content := range map[string]string{
		"empty":       "",
		"unparseable": "garbage,,\n\x00\x01",
	} {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			path := s.CleanPath("AAPL")
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))

			refresh, reason, err := NewGate(s).NeedsRefresh("AAPL", now)
			require.NoError(t, err)
			assert.True(t, refresh)
			assert.Equal(t, ReasonCorrupt, reason)
			assert.False(t, exists(path))
		})
	}
}
