package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"StockPulse/internal/model"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS forecast_runs (
			id                 TEXT PRIMARY KEY,
			ticker             TEXT NOT NULL,
			started_at         INTEGER NOT NULL,
			finished_at        INTEGER NOT NULL,
			outcome            TEXT NOT NULL,
			error              TEXT,
			last_close         REAL,
			forecast           TEXT,
			action             TEXT,
			rationale          TEXT,
			severity           INTEGER,
			return_pct         REAL,
			recent_unavailable INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ticker_ts ON forecast_runs(ticker, started_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRun inserts rec.
func (r *SQLiteRecorder) RecordRun(ctx context.Context, rec *RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var forecast []byte
	if len(rec.Forecast) > 0 {
		var err error
		if forecast, err = json.Marshal(rec.Forecast); err != nil {
			return fmt.Errorf("encode forecast: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO forecast_runs
		(id, ticker, started_at, finished_at, outcome, error, last_close, forecast,
		 action, rationale, severity, return_pct, recent_unavailable)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.Ticker, rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(),
		rec.Outcome, rec.Error, rec.LastClose, string(forecast),
		string(rec.Action), rec.Rationale, int(rec.Severity), rec.ReturnPct, rec.RecentUnavailable,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs for ticker, newest first.
func (r *SQLiteRecorder) RecentRuns(ctx context.Context, ticker string, limit int) ([]RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT
		id, ticker, started_at, finished_at, outcome, error, last_close, forecast,
		action, rationale, severity, return_pct, recent_unavailable
		FROM forecast_runs WHERE ticker = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec               RunRecord
			started, finished int64
			errText, forecast sql.NullString
			action, rationale sql.NullString
			lastClose, ret    sql.NullFloat64
			severity          sql.NullInt64
			recentUnavailable sql.NullBool
		)
		if err := rows.Scan(&rec.ID, &rec.Ticker, &started, &finished, &rec.Outcome, &errText,
			&lastClose, &forecast, &action, &rationale, &severity, &ret, &recentUnavailable); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.StartedAt = time.UnixMilli(started).UTC()
		rec.FinishedAt = time.UnixMilli(finished).UTC()
		rec.Error = errText.String
		rec.LastClose = lastClose.Float64
		rec.Action = model.Action(action.String)
		rec.Rationale = rationale.String
		rec.Severity = model.Severity(severity.Int64)
		rec.ReturnPct = ret.Float64
		rec.RecentUnavailable = recentUnavailable.Bool
		if forecast.String != "" {
			if err := json.Unmarshal([]byte(forecast.String), &rec.Forecast); err != nil {
				return nil, fmt.Errorf("decode forecast of run %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
