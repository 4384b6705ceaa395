package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"StockPulse/internal/apperr"
	"StockPulse/internal/model"
)

// Options tunes the guard around a Fetcher.
type Options struct {
	Timeout       time.Duration // per-call deadline
	RatePerSecond float64
	Burst         int
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// CooldownPeriod is how long the breaker stays open.
	CooldownPeriod time.Duration
	// OnResult, if set, observes every call outcome.
	OnResult func(source string, err error)
}

// Collector is the ingestion adapter: it guards a Fetcher with a deadline, a
// rate limiter and a circuit breaker, and reports every failure as
// SourceUnavailable.
type Collector struct {
	Fetcher Fetcher
	opts    Options
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, opts Options) *Collector {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 3
	}
	if opts.CooldownPeriod <= 0 {
		opts.CooldownPeriod = time.Minute
	}
	threshold := opts.FailureThreshold
	return &Collector{
		Fetcher: fetcher,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        fetcher.Name(),
			MaxRequests: 1,
			Timeout:     opts.CooldownPeriod,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("source", name).Str("from", from.String()).Str("to", to.String()).
					Msg("data source breaker state changed")
			},
		}),
	}
}

// Fetch downloads the raw table for symbol in [start, end). Failures are
// SourceUnavailable, except that a done ctx returns ctx.Err() unwrapped.
func (c *Collector) Fetch(ctx context.Context, symbol string, start, end time.Time) (*model.RawTable, error) {
	table, err := c.fetch(ctx, symbol, start, end)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if c.opts.OnResult != nil {
		c.opts.OnResult(c.Fetcher.Name(), err)
	}
	if err != nil {
		return nil, apperr.SourceUnavailable("fetch", symbol, err)
	}
	log.Info().Str("ticker", symbol).Str("source", c.Fetcher.Name()).
		Int("rows", len(table.Rows)).Msg("fetched recent data")
	return table, nil
}

func (c *Collector) fetch(ctx context.Context, symbol string, start, end time.Time) (*model.RawTable, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("empty range %s..%s", start.Format(model.DateLayout), end.Format(model.DateLayout))
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.Fetcher.FetchDaily(ctx, symbol, start, end)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s breaker open: %w", c.Fetcher.Name(), err)
		}
		return nil, err
	}
	table, _ := out.(*model.RawTable)
	if table == nil || len(table.Rows) == 0 {
		return nil, fmt.Errorf("%s: empty table", c.Fetcher.Name())
	}
	return table, nil
}
