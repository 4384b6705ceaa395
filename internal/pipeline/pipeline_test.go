package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/apperr"
	"StockPulse/internal/collector"
	"StockPulse/internal/forecast"
	"StockPulse/internal/metrics"
	"StockPulse/internal/model"
	"StockPulse/internal/reconcile"
	"StockPulse/internal/recorder"
	"StockPulse/internal/store"
)

// lastHistorical is D in the scenarios below: a Friday.
var lastHistorical = time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)

func weekdaysEndingAt(end time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	d := end
	for i := n - 1; i >= 0; i-- {
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, -1)
		}
		out[i] = d
		d = d.AddDate(0, 0, -1)
	}
	return out
}

func writeHistorical(t *testing.T, st *store.Store, ticker string, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("Date,Open,High,Low,Close,Volume\n")
	for i, d := range weekdaysEndingAt(lastHistorical, n) {
		c := 100 + float64(i)*0.1
		fmt.Fprintf(&b, "%s,%g,%g,%g,%g,%d\n", d.Format(model.DateLayout), c, c+1, c-1, c, 1000+i)
	}
	path := st.HistoricalPath(ticker)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
}

// recentTable is a yfinance-style export of the 5 weekdays after D, with the
// metadata rows that source prepends.
func recentTable() *model.RawTable {
	rows := [][]string{
		{"Price", "Adj Close", "Close", "High", "Low", "Open", "Volume"},
		{"Ticker", "AAPL", "AAPL", "AAPL", "AAPL", "AAPL", "AAPL"},
		{"Date", "", "", "", "", "", ""},
	}
	d := lastHistorical
	for i := 0; i < 5; i++ {
		d = d.AddDate(0, 0, 1)
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		c := fmt.Sprintf("%g", 131+float64(i))
		rows = append(rows, []string{d.Format(model.DateLayout), c, c, c, c, c, "5000"})
	}
	return &model.RawTable{Source: "test", Rows: rows}
}

type fakeLoader struct {
	model forecast.Model
	err   error
}

func (f *fakeLoader) Load(context.Context, string) (forecast.Model, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.model, nil
}

// targetModel always predicts the scaled value of target under [min, max].
func targetModel(target, min, max float64) forecast.Model {
	return forecast.ModelFunc(func(_ context.Context, batch []float64) (float64, error) {
		if len(batch) != 60 {
			return 0, fmt.Errorf("unexpected batch length %d", len(batch))
		}
		return (target - min) / (max - min), nil
	})
}

type harness struct {
	store    *store.Store
	fetcher  *collector.MockFetcher
	loader   *fakeLoader
	recorder *recorder.SQLiteRecorder
	metrics  *metrics.Registry
	now      time.Time
	pipeline *Pipeline
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		store: store.New(store.Paths{
			HistoricalDir: filepath.Join(dir, "historical"),
			DataDir:       filepath.Join(dir, "data"),
			CombineDir:    filepath.Join(dir, "combine_data"),
		}),
		fetcher: &collector.MockFetcher{Table: recentTable()},
		loader:  &fakeLoader{},
		metrics: metrics.New(),
		now:     time.Date(2025, 3, 17, 10, 0, 0, 0, time.UTC),
	}
	rec, err := recorder.NewSQLiteRecorder(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	h.recorder = rec

	if cfg.StartDate.IsZero() {
		cfg.StartDate = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	n := 0
	h.pipeline = New(cfg, Deps{
		Store: h.store,
		Source: collector.NewCollector(h.fetcher, collector.Options{
			RatePerSecond:    1000,
			FailureThreshold: 100,
			OnResult:         h.metrics.ObserveFetch,
		}),
		Loader:   h.loader,
		Recorder: rec,
		Metrics:  h.metrics,
		Now:      func() time.Time { return h.now },
		NewID: func() string {
			n++
			return fmt.Sprintf("run-%d", n)
		},
	})
	return h
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness(t, Config{})
	writeHistorical(t, h.store, "AAPL", 300)
	// merged closes span 100 (first historical) to 135 (last recent)
	h.loader.model = targetModel(135*1.06, 100, 135)

	res, err := h.pipeline.Run(context.Background(), "aapl")
	require.NoError(t, err)

	assert.True(t, res.Refresh.Fetched)
	assert.False(t, res.Refresh.RecentUnavailable)
	assert.Equal(t, 305, res.Refresh.Rows)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), res.Refresh.LastDate)
	assert.Equal(t, 135.0, res.Refresh.LastClose)
	assert.Equal(t, reconcile.Stats{Historical: 300, Recent: 5, Overlap: 0, Merged: 305}, res.Refresh.Merge)

	require.Len(t, res.Forecast, 7)
	assert.InDelta(t, 135*1.06, res.Forecast.Final(), 1e-9)
	assert.Equal(t, model.ActionBuy, res.Recommendation.Action)
	assert.Equal(t, model.SeverityStrongUp, res.Recommendation.Severity)
	assert.Contains(t, res.Recommendation.Rationale, "Strong upward")
	assert.Equal(t, "positive", res.Summary.Trend)
	require.Len(t, res.Table, 7)
	assert.Equal(t, time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC), res.Table[0].Date)
	assert.Equal(t, time.Date(2025, 3, 25, 0, 0, 0, 0, time.UTC), res.Table[6].Date)

	combined, err := h.store.ReadCombined("AAPL")
	require.NoError(t, err)
	require.Equal(t, 305, combined.Len())
	for i := 1; i < combined.Len(); i++ {
		require.True(t, combined.Bars[i].Time.After(combined.Bars[i-1].Time))
	}
	assert.Equal(t, res.Refresh.LastDate, combined.Bars[304].Time)

	_, err = os.Stat(h.store.RawPath("AAPL"))
	assert.NoError(t, err)
	clean, err := h.store.ReadClean("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 5, clean.Len())

	runs, err := h.pipeline.History(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, recorder.OutcomeOK, runs[0].Outcome)
	assert.Equal(t, model.ActionBuy, runs[0].Action)
	assert.Len(t, runs[0].Forecast, 7)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PipelineRuns.WithLabelValues("AAPL", "OK")))
}

func TestRun_FreshCacheSkipsFetch(t *testing.T) {
	h := newHarness(t, Config{})
	writeHistorical(t, h.store, "AAPL", 300)
	h.loader.model = targetModel(135, 100, 135)

	_, err := h.pipeline.Refresh(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, 1, h.fetcher.Calls)

	// the clean cache ends on Friday 2025-03-14, which is "yesterday" on Saturday
	h.now = time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)
	res, err := h.pipeline.Run(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, h.fetcher.Calls)
	assert.False(t, res.Refresh.Fetched)
	assert.Equal(t, 305, res.Refresh.Rows)
	assert.Equal(t, model.ActionHold, res.Recommendation.Action)
}

func TestRun_StaleCacheIsRefetched(t *testing.T) {
	h := newHarness(t, Config{})
	writeHistorical(t, h.store, "AAPL", 300)
	h.loader.model = targetModel(135, 100, 135)

	_, err := h.pipeline.Refresh(context.Background(), "AAPL")
	require.NoError(t, err)

	_, err = h.pipeline.Run(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, h.fetcher.Calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CacheInvalidations.WithLabelValues("stale")))
}

func TestRun_OverlapPolicy(t *testing.T) {
	for _, tt := range []struct {
		policy reconcile.OverlapPolicy
		want   float64
	}{
		{reconcile.RecentWins, 999},
		{reconcile.HistoricalWins, 100 + 299*0.1},
	} {
		t.Run(string(tt.policy), func(t *testing.T) {
			h := newHarness(t, Config{Overlap: tt.policy})
			writeHistorical(t, h.store, "AAPL", 300)
			table := recentTable()
			table.Rows = append(table.Rows, []string{lastHistorical.Format(model.DateLayout), "999", "999", "999", "999", "999", "1"})
			h.fetcher.Table = table

			res, err := h.pipeline.Refresh(context.Background(), "AAPL")
			require.NoError(t, err)
			assert.Equal(t, 305, res.Rows)
			assert.Equal(t, 1, res.Merge.Overlap)

			combined, err := h.store.ReadCombined("AAPL")
			require.NoError(t, err)
			assert.InDelta(t, tt.want, combined.Bars[299].Close, 1e-9)
		})
	}
}

func TestRun_SourceUnavailableDegrades(t *testing.T) {
	h := newHarness(t, Config{})
	writeHistorical(t, h.store, "AAPL", 300)
	h.fetcher.Err = errors.New("connection reset by peer")
	h.loader.model = targetModel(100+299*0.1, 100, 100+299*0.1)

	res, err := h.pipeline.Run(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, res.Refresh.RecentUnavailable)
	assert.Equal(t, 300, res.Refresh.Rows)
	assert.Equal(t, lastHistorical, res.Refresh.LastDate)

	_, err = h.store.ReadClean("AAPL")
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SourceFetches.WithLabelValues("mock", "error")))

	runs, err := h.pipeline.History(context.Background(), "AAPL", 1)
	require.NoError(t, err)
	assert.True(t, runs[0].RecentUnavailable)
}

func TestRun_MissingColumnPolicy(t *testing.T) {
	noVolume := func() *model.RawTable {
		table := recentTable()
		for i := range table.Rows {
			table.Rows[i] = table.Rows[i][:6]
		}
		return table
	}

	t.Run("reject", func(t *testing.T) {
		h := newHarness(t, Config{Missing: collector.MissingReject})
		writeHistorical(t, h.store, "AAPL", 300)
		h.fetcher.Table = noVolume()

		res, err := h.pipeline.Refresh(context.Background(), "AAPL")
		require.NoError(t, err)
		assert.True(t, res.RecentUnavailable)
		assert.Equal(t, 300, res.Rows)
	})

	t.Run("zero fill", func(t *testing.T) {
		h := newHarness(t, Config{Missing: collector.MissingZeroFill})
		writeHistorical(t, h.store, "AAPL", 300)
		h.fetcher.Table = noVolume()

		res, err := h.pipeline.Refresh(context.Background(), "AAPL")
		require.NoError(t, err)
		assert.False(t, res.RecentUnavailable)
		assert.Equal(t, 305, res.Rows)

		clean, err := h.store.ReadClean("AAPL")
		require.NoError(t, err)
		assert.Equal(t, int64(0), clean.Bars[0].Volume)
	})
}

func TestRun_TerminalFailures(t *testing.T) {
	tests := []struct {
		name       string
		historical int
		fetchErr   error
		loaderErr  error
		model      forecast.Model
		want       error
	}{
		{"no data", 0, errors.New("down"), nil, nil, apperr.ErrNoData},
		{"insufficient history", 30, errors.New("down"), nil, nil, apperr.ErrInsufficientHistory},
		{"model not found", 300, nil, apperr.ModelNotFound("load model", "AAPL", "models/AAPL_model.json"), nil, apperr.ErrModelNotFound},
		{"inference error", 300, nil, nil, forecast.ModelFunc(func(context.Context, []float64) (float64, error) {
			return 0, errors.New("graph execution error")
		}), apperr.ErrInferenceError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			if tt.historical > 0 {
				writeHistorical(t, h.store, "AAPL", tt.historical)
			}
			h.fetcher.Err = tt.fetchErr
			h.loader.err = tt.loaderErr
			h.loader.model = tt.model

			res, err := h.pipeline.Run(context.Background(), "AAPL")
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			runs, herr := h.pipeline.History(context.Background(), "AAPL", 1)
			require.NoError(t, herr)
			require.Len(t, runs, 1)
			assert.Equal(t, string(apperr.KindOf(tt.want)), runs[0].Outcome)
			assert.Nil(t, runs[0].Forecast)
			assert.NotEmpty(t, runs[0].Error)
		})
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t, Config{})
	writeHistorical(t, h.store, "AAPL", 300)
	h.loader.model = targetModel(135, 100, 135)
	_, err := h.pipeline.Refresh(context.Background(), "AAPL")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := h.pipeline.Run(ctx, "AAPL")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, apperr.KindOf(err))
	assert.Equal(t, 1, h.fetcher.Calls)

	for _, path := range []string{h.store.RawPath("AAPL"), h.store.CleanPath("AAPL"), h.store.CombinedPath("AAPL")} {
		assert.FileExists(t, path)
	}

	runs, err := h.pipeline.History(context.Background(), "AAPL", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "CANCELLED", runs[0].Outcome)
	assert.False(t, runs[0].RecentUnavailable)
}

func TestRun_CancelledDuringFetchKeepsCaches(t *testing.T) {
	h := newHarness(t, Config{})
	writeHistorical(t, h.store, "AAPL", 300)
	h.loader.model = targetModel(135, 100, 135)
	_, err := h.pipeline.Refresh(context.Background(), "AAPL")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.fetcher.Hook = func(context.Context) { cancel() }

	// the clean cache is stale on 2025-03-17, so the run goes to the source
	_, err = h.pipeline.Run(ctx, "AAPL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, apperr.ErrSourceUnavailable))
	assert.Equal(t, 2, h.fetcher.Calls)

	assert.FileExists(t, h.store.RawPath("AAPL"))
	combined, err := h.store.ReadCombined("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 305, combined.Len(), "combined snapshot not rewritten from history alone")
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.SourceFetches.WithLabelValues("mock", "error")))

	runs, err := h.pipeline.History(context.Background(), "AAPL", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "CANCELLED", runs[0].Outcome)
	assert.False(t, runs[0].RecentUnavailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PipelineRuns.WithLabelValues("AAPL", "CANCELLED")))
}

func TestRun_InvalidTicker(t *testing.T) {
	h := newHarness(t, Config{})
	for _, in := range []string{"", "1ABC", "AAPL;DROP", "TOOLONGTICKER"} {
		_, err := h.pipeline.Run(context.Background(), in)
		assert.True(t, errors.Is(err, apperr.ErrInvalidInput), in)
	}
	assert.Equal(t, 0, h.fetcher.Calls)
}

func TestMonthlyAndPeriods(t *testing.T) {
	h := newHarness(t, Config{})
	writeHistorical(t, h.store, "AAPL", 300)

	periods, err := h.pipeline.Periods("AAPL")
	require.NoError(t, err)
	require.NotEmpty(t, periods)
	assert.Equal(t, model.Period{Year: 2025, Month: 3}, periods[len(periods)-1])

	st, err := h.pipeline.Monthly("AAPL", 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, st.Rows)

	// after a refresh the combined snapshot (with recent rows) is preferred
	_, err = h.pipeline.Refresh(context.Background(), "AAPL")
	require.NoError(t, err)
	st, err = h.pipeline.Monthly("AAPL", 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, st.Rows)
	assert.Equal(t, 135.0, st.LastClose)

	_, err = h.pipeline.Monthly("TSLA", 2025, 3)
	assert.True(t, errors.Is(err, apperr.ErrNoData))
}

func TestNormalizeTicker(t *testing.T) {
	for in, want := range map[string]string{"aapl": "AAPL", " brk.b ": "BRK.B", "BF-B": "BF-B"} {
		got, err := NormalizeTicker(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "OK", Outcome(nil))
	assert.Equal(t, "NO_DATA", Outcome(fmt.Errorf("wrap: %w", apperr.NoData("x", "AAPL", "none"))))
	assert.Equal(t, "CANCELLED", Outcome(context.Canceled))
	assert.Equal(t, "ERROR", Outcome(errors.New("disk full")))
}
