package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/model"
)

func openTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLiteRecorder_RoundTrip(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()
	start := time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC)

	ok := &RunRecord{
		ID:         "run-1",
		Ticker:     "AAPL",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Outcome:    OutcomeOK,
		LastClose:  200.5,
		Forecast:   model.ForecastResult{201, 202.25, 203, 204, 205, 210, 213},
		Action:     model.ActionBuy,
		Rationale:  "Strong upward trend predicted over the next week",
		Severity:   model.SeverityStrongUp,
		ReturnPct:  6.23,
	}
	failed := &RunRecord{
		ID:                "run-2",
		Ticker:            "AAPL",
		StartedAt:         start.Add(time.Hour),
		FinishedAt:        start.Add(time.Hour),
		Outcome:           "MODEL_NOT_FOUND",
		Error:             "[MODEL_NOT_FOUND] load model AAPL",
		RecentUnavailable: true,
	}
	other := &RunRecord{ID: "run-3", Ticker: "MSFT", StartedAt: start, FinishedAt: start, Outcome: OutcomeOK}

	for _, rec := range []*RunRecord{ok, failed, other} {
		require.NoError(t, r.RecordRun(ctx, rec))
	}

	runs, err := r.RecentRuns(ctx, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, *failed, runs[0])
	assert.Nil(t, runs[0].Forecast)
	assert.Equal(t, *ok, runs[1])

	limited, err := r.RecentRuns(ctx, "AAPL", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-2", limited[0].ID)

	none, err := r.RecentRuns(ctx, "TSLA", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteRecorder_DuplicateID(t *testing.T) {
	r := openTestRecorder(t)
	rec := &RunRecord{ID: "dup", Ticker: "AAPL", StartedAt: time.Now(), FinishedAt: time.Now(), Outcome: OutcomeOK}
	require.NoError(t, r.RecordRun(context.Background(), rec))
	assert.Error(t, r.RecordRun(context.Background(), rec))
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	require.NoError(t, r.RecordRun(context.Background(), &RunRecord{}))
	runs, err := r.RecentRuns(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, r.Close())
}
