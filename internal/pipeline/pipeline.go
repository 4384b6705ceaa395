// Package pipeline runs the end-to-end forecast for one ticker: freshness
// check, ingestion, reconciliation, windowing, inference and advice.
package pipeline

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"StockPulse/internal/advisor"
	"StockPulse/internal/apperr"
	"StockPulse/internal/calculator"
	"StockPulse/internal/collector"
	"StockPulse/internal/forecast"
	"StockPulse/internal/freshness"
	"StockPulse/internal/lock"
	"StockPulse/internal/metrics"
	"StockPulse/internal/model"
	"StockPulse/internal/reconcile"
	"StockPulse/internal/recorder"
	"StockPulse/internal/store"
	"StockPulse/internal/window"
)

// Source fetches the raw recent table for a ticker over [start, end).
type Source interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) (*model.RawTable, error)
}

// Config holds the pipeline parameters.
type Config struct {
	StartDate time.Time
	TimeStep  int
	Days      int
	Feature   string
	Overlap   reconcile.OverlapPolicy
	Missing   collector.MissingColumnPolicy
}

// Deps are the collaborators of a Pipeline. Store, Source and Loader are
// required; the rest have defaults.
type Deps struct {
	Store    *store.Store
	Source   Source
	Loader   forecast.Loader
	Locker   lock.Locker
	Recorder recorder.Recorder
	Metrics  *metrics.Registry
	Now      func() time.Time
	NewID    func() string
}

// Pipeline is the forecasting pipeline.
type Pipeline struct {
	cfg  Config
	deps Deps
	gate *freshness.Gate
}

// New creates a Pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.TimeStep <= 0 {
		cfg.TimeStep = window.DefaultTimeStep
	}
	if cfg.Days <= 0 {
		cfg.Days = forecast.DefaultDays
	}
	if cfg.Feature == "" {
		cfg.Feature = window.DefaultFeature
	}
	if cfg.Overlap == "" {
		cfg.Overlap = reconcile.RecentWins
	}
	if cfg.Missing == "" {
		cfg.Missing = collector.MissingReject
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	gate := freshness.NewGate(deps.Store)
	if deps.Metrics != nil {
		m := deps.Metrics
		gate.OnInvalidate = func(_ string, reason freshness.Reason) {
			m.ObserveInvalidation(string(reason))
		}
	}
	return &Pipeline{cfg: cfg, deps: deps, gate: gate}
}

// RefreshResult describes the ingestion and reconciliation stage.
type RefreshResult struct {
	Ticker            string          `json:"ticker"`
	Fetched           bool            `json:"fetched"`
	RecentUnavailable bool            `json:"recent_unavailable"`
	Merge             reconcile.Stats `json:"merge"`
	Rows              int             `json:"rows"`
	LastDate          time.Time       `json:"last_date"`
	LastClose         float64         `json:"last_close"`
}

// Result is the outcome of a successful forecast run.
type Result struct {
	RunID          string                `json:"run_id"`
	Refresh        RefreshResult         `json:"refresh"`
	Forecast       model.ForecastResult  `json:"forecast"`
	Recommendation model.Recommendation  `json:"recommendation"`
	Summary        model.Summary         `json:"summary"`
	Table          []model.PredictionDay `json:"table"`
}

// Run executes the whole pipeline for ticker. It returns either a complete
// Result or a single terminal error; every run is recorded.
func (p *Pipeline) Run(ctx context.Context, ticker string) (*Result, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	release, err := p.deps.Locker.Lock(ctx, ticker)
	if err != nil {
		return nil, err
	}
	defer release()

	rec := &recorder.RunRecord{ID: p.deps.NewID(), Ticker: ticker, StartedAt: p.deps.Now()}
	res, err := p.run(ctx, ticker, rec)
	p.finish(ctx, rec, err)
	if err != nil {
		log.Error().Err(err).Str("ticker", ticker).Str("run_id", rec.ID).Msg("forecast run failed")
		return nil, err
	}
	log.Info().Str("ticker", ticker).Str("run_id", rec.ID).Str("action", string(res.Recommendation.Action)).
		Float64("return_pct", res.Recommendation.ReturnPct).Msg("forecast run completed")
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, ticker string, rec *recorder.RunRecord) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	refresh, merged, err := p.refresh(ctx, ticker)
	if refresh != nil {
		rec.RecentUnavailable = refresh.RecentUnavailable
	}
	if err != nil {
		return nil, err
	}
	rec.LastClose = refresh.LastClose

	w, err := window.Build(merged, p.cfg.Feature, p.cfg.TimeStep)
	if err != nil {
		return nil, err
	}
	m, err := p.deps.Loader.Load(ctx, ticker)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	fc, err := forecast.Rollout(ctx, ticker, m, w, p.cfg.Days)
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveInference(time.Since(started))
	}
	if err != nil {
		return nil, err
	}

	advice, err := advisor.Recommend(fc, refresh.LastClose)
	if err != nil {
		return nil, err
	}
	summary, err := advisor.Summarize(fc, refresh.LastClose)
	if err != nil {
		return nil, err
	}
	table, err := advisor.PredictionTable(refresh.LastDate, refresh.LastClose, fc)
	if err != nil {
		return nil, err
	}

	rec.Forecast = fc
	rec.Action = advice.Action
	rec.Rationale = advice.Rationale
	rec.Severity = advice.Severity
	rec.ReturnPct = advice.ReturnPct

	return &Result{
		RunID:          rec.ID,
		Refresh:        *refresh,
		Forecast:       fc,
		Recommendation: advice,
		Summary:        summary,
		Table:          table,
	}, nil
}

func (p *Pipeline) finish(ctx context.Context, rec *recorder.RunRecord, err error) {
	rec.FinishedAt = p.deps.Now()
	rec.Outcome = Outcome(err)
	if err != nil {
		rec.Error = err.Error()
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveRun(rec.Ticker, rec.Outcome, rec.FinishedAt.Sub(rec.StartedAt))
	}
	if rerr := p.deps.Recorder.RecordRun(context.WithoutCancel(ctx), rec); rerr != nil {
		log.Warn().Err(rerr).Str("run_id", rec.ID).Msg("failed to record run")
	}
}

// Outcome names the result of a run for history and metrics.
func Outcome(err error) string {
	if err == nil {
		return recorder.OutcomeOK
	}
	if kind := apperr.KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELLED"
	}
	return "ERROR"
}

// Refresh runs only the freshness, ingestion and reconciliation stages.
func (p *Pipeline) Refresh(ctx context.Context, ticker string) (*RefreshResult, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	release, err := p.deps.Locker.Lock(ctx, ticker)
	if err != nil {
		return nil, err
	}
	defer release()

	res, _, err := p.refresh(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// refresh must be called with the ticker lock held.
func (p *Pipeline) refresh(ctx context.Context, ticker string) (*RefreshResult, *model.PriceSeries, error) {
	res := &RefreshResult{Ticker: ticker}
	now := p.deps.Now()

	needs, reason, err := p.gate.NeedsRefresh(ticker, now)
	if err != nil {
		return nil, nil, err
	}

	var recent *model.PriceSeries
	if needs {
		log.Info().Str("ticker", ticker).Str("reason", string(reason)).Msg("refreshing recent data")
		res.Fetched = true
		recent, err = p.ingest(ctx, ticker, now)
		if errors.Is(err, apperr.ErrSourceUnavailable) {
			log.Warn().Err(err).Str("ticker", ticker).Msg("no recent data this run, using historical only")
			res.RecentUnavailable = true
			recent = &model.PriceSeries{Symbol: ticker}
		} else if err != nil {
			return nil, nil, err
		}
	} else {
		recent, err = p.deps.Store.ReadClean(ticker)
		if err != nil {
			return nil, nil, err
		}
	}

	historical, err := p.deps.Store.LoadHistorical(ticker)
	if err != nil {
		return res, nil, err
	}

	merged, stats, err := reconcile.Merge(ticker, historical, recent, p.cfg.Overlap)
	if err != nil {
		return res, nil, err
	}
	res.Merge = stats
	if err := p.deps.Store.WriteCombined(ticker, merged); err != nil {
		return res, nil, err
	}

	last, _ := merged.Last()
	res.Rows = merged.Len()
	res.LastDate = last.Time
	res.LastClose = last.Close
	log.Info().Str("ticker", ticker).Int("historical", stats.Historical).Int("recent", stats.Recent).
		Int("overlap", stats.Overlap).Int("rows", stats.Merged).Msg("reconciled series")
	return res, merged, nil
}

// ingest fetches, persists and normalizes recent data. The old caches are
// removed once the fetch has either succeeded or failed as SourceUnavailable;
// a cancelled fetch leaves them in place. An empty normalized result counts as
// the source being unavailable.
func (p *Pipeline) ingest(ctx context.Context, ticker string, now time.Time) (*model.PriceSeries, error) {
	raw, err := p.deps.Source.Fetch(ctx, ticker, p.cfg.StartDate, model.DateOf(now))
	if err != nil && !errors.Is(err, apperr.ErrSourceUnavailable) {
		return nil, err
	}
	if _, cerr := p.deps.Store.Cleanup(ticker); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, err
	}
	if err := p.deps.Store.WriteRaw(ticker, raw); err != nil {
		return nil, err
	}
	recent, err := collector.Normalize(ticker, raw, p.cfg.Missing)
	if err != nil {
		return nil, err
	}
	if recent.Len() == 0 {
		return nil, apperr.SourceUnavailable("ingest", ticker, errors.New("no parseable rows"))
	}
	if err := p.deps.Store.WriteClean(ticker, recent); err != nil {
		return nil, err
	}
	return recent, nil
}

// History returns the most recent recorded runs for ticker.
func (p *Pipeline) History(ctx context.Context, ticker string, limit int) ([]recorder.RunRecord, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	return p.deps.Recorder.RecentRuns(ctx, ticker, limit)
}

// Series returns the series used for browsing history: the last combined
// snapshot when one exists, otherwise the historical snapshot.
func (p *Pipeline) Series(ticker string) (*model.PriceSeries, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	series, err := p.deps.Store.ReadCombined(ticker)
	if err == nil {
		return series, nil
	}
	if errors.Is(err, apperr.ErrCorruptCache) {
		log.Warn().Err(err).Str("ticker", ticker).Msg("combined snapshot unreadable, using historical")
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	series, err = p.deps.Store.LoadHistorical(ticker)
	if err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, apperr.NoData("series", ticker, "no stored history")
	}
	return series, nil
}

// Monthly computes statistics for one calendar month of ticker's history.
func (p *Pipeline) Monthly(ticker string, year, month int) (*model.MonthlyStats, error) {
	series, err := p.Series(ticker)
	if err != nil {
		return nil, err
	}
	return calculator.MonthlyStats(series, year, month)
}

// Periods lists the year/month pairs available for ticker.
func (p *Pipeline) Periods(ticker string) ([]model.Period, error) {
	series, err := p.Series(ticker)
	if err != nil {
		return nil, err
	}
	return calculator.AvailablePeriods(series), nil
}
