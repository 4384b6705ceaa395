package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"StockPulse/internal/model"
	"StockPulse/internal/notifier"
	"StockPulse/internal/pipeline"
	"StockPulse/internal/recorder"
)

// Forecaster is the part of the pipeline the scheduler drives.
type Forecaster interface {
	Run(ctx context.Context, ticker string) (*pipeline.Result, error)
	History(ctx context.Context, ticker string, limit int) ([]recorder.RunRecord, error)
	Monthly(ticker string, year, month int) (*model.MonthlyStats, error)
}

// Sender delivers formatted reports.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler runs the daily forecasts and answers chat commands.
type Scheduler struct {
	Cron     *cron.Cron
	Pipeline Forecaster
	Notifier Sender
	Tickers  []string
	Ctx      context.Context
}

// NewScheduler creates a new Scheduler. Notifier may be nil, in which case
// reports are only logged.
func NewScheduler(ctx context.Context, p Forecaster, n Sender, tickers []string) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Pipeline: p,
		Notifier: n,
		Tickers:  tickers,
		Ctx:      ctx,
	}
}

// RegisterDaily registers the forecast sweep over all tickers.
func (s *Scheduler) RegisterDaily(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.RunAllNow); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Int("tickers", len(s.Tickers)).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// RunAllNow forecasts every configured ticker in order and sends one report
// per ticker. It stops early when the scheduler context is cancelled.
func (s *Scheduler) RunAllNow() {
	start := time.Now()
	log.Info().Strs("tickers", s.Tickers).Msg("running daily forecasts")

	done := 0
	for _, ticker := range s.Tickers {
		if s.Ctx.Err() != nil {
			log.Warn().Int("done", done).Int("total", len(s.Tickers)).Msg("daily forecasts interrupted")
			return
		}
		s.trySend(s.forecast(s.Ctx, ticker))
		done++
	}
	log.Info().Int("tickers", done).Dur("elapsed", time.Since(start)).Msg("daily forecasts finished")
}

func (s *Scheduler) forecast(ctx context.Context, ticker string) string {
	res, err := s.Pipeline.Run(ctx, ticker)
	if err != nil {
		return notifier.FormatFailure(strings.ToUpper(ticker), err)
	}
	return notifier.FormatForecastReport(notifier.ForecastReport{
		Ticker:            res.Refresh.Ticker,
		RunID:             res.RunID,
		LastDate:          res.Refresh.LastDate,
		RecentUnavailable: res.Refresh.RecentUnavailable,
		Summary:           res.Summary,
		Recommendation:    res.Recommendation,
		Table:             res.Table,
	})
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.FormatHelp(s.Tickers)
	}
	// Commands may arrive as /predict@BotName in group chats.
	name := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])
	args := fields[1:]

	switch name {
	case "/predict":
		if len(args) != 1 {
			return "Usage: /predict TICKER"
		}
		return s.forecast(ctx, args[0])
	case "/history":
		if len(args) != 1 {
			return "Usage: /history TICKER"
		}
		runs, err := s.Pipeline.History(ctx, args[0], 5)
		if err != nil {
			return notifier.FormatFailure(strings.ToUpper(args[0]), err)
		}
		return notifier.FormatRunHistory(strings.ToUpper(args[0]), runs)
	case "/monthly":
		if len(args) != 2 {
			return "Usage: /monthly TICKER YYYY-MM"
		}
		year, month, err := parsePeriod(args[1])
		if err != nil {
			return err.Error()
		}
		st, err := s.Pipeline.Monthly(args[0], year, month)
		if err != nil {
			return notifier.FormatFailure(strings.ToUpper(args[0]), err)
		}
		return notifier.FormatMonthlyStats(strings.ToUpper(args[0]), st)
	case "/tickers":
		return "Tracked tickers: " + strings.Join(s.Tickers, ", ")
	default:
		return notifier.FormatHelp(s.Tickers)
	}
}

func parsePeriod(s string) (int, int, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("period must be YYYY-MM, got %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid year %q", parts[0])
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q", parts[1])
	}
	return year, month, nil
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		log.Info().Msg(text)
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Error().Err(err).Msg("send notification failed")
	}
}
