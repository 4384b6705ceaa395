package recorder

import (
	"context"
	"time"

	"StockPulse/internal/model"
)

// OutcomeOK marks a run that produced a forecast. Failed runs carry the
// failure kind instead.
const OutcomeOK = "OK"

// RunRecord is one pipeline run, successful or not.
type RunRecord struct {
	ID                string               `json:"id"`
	Ticker            string               `json:"ticker"`
	StartedAt         time.Time            `json:"started_at"`
	FinishedAt        time.Time            `json:"finished_at"`
	Outcome           string               `json:"outcome"`
	Error             string               `json:"error,omitempty"`
	LastClose         float64              `json:"last_close,omitempty"`
	Forecast          model.ForecastResult `json:"forecast,omitempty"`
	Action            model.Action         `json:"action,omitempty"`
	Rationale         string               `json:"rationale,omitempty"`
	Severity          model.Severity       `json:"severity"`
	ReturnPct         float64              `json:"return_pct"`
	RecentUnavailable bool                 `json:"recent_unavailable"`
}

// Recorder persists run history for later inspection.
type Recorder interface {
	RecordRun(ctx context.Context, rec *RunRecord) error
	RecentRuns(ctx context.Context, ticker string, limit int) ([]RunRecord, error)
	Close() error
}
