// Package freshness decides whether a ticker's recent-data cache must be
// refetched, deleting caches that are stale or unreadable.
package freshness

import (
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"StockPulse/internal/apperr"
	"StockPulse/internal/model"
)

// Reason explains a refresh decision.
type Reason string

const (
	ReasonFresh   Reason = "fresh"
	ReasonMissing Reason = "missing"
	ReasonCorrupt Reason = "corrupt"
	ReasonStale   Reason = "stale"
)

// CacheStore is the subset of the SeriesStore the gate needs.
type CacheStore interface {
	ReadClean(ticker string) (*model.PriceSeries, error)
	DeleteClean(ticker string) error
}

// Gate is the freshness gate.
type Gate struct {
	store CacheStore
	// OnInvalidate, if set, observes every cache deletion.
	OnInvalidate func(ticker string, reason Reason)
}

// NewGate creates a Gate over store.
func NewGate(store CacheStore) *Gate {
	return &Gate{store: store}
}

// NeedsRefresh reports whether ticker's recent data must be fetched. The cache
// is fresh only when its latest date is exactly the day before now's calendar
// date; a stale or corrupt cache is deleted.
func (g *Gate) NeedsRefresh(ticker string, now time.Time) (bool, Reason, error) {
	series, err := g.store.ReadClean(ticker)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return true, ReasonMissing, nil
	case errors.Is(err, apperr.ErrCorruptCache):
		log.Warn().Err(err).Str("ticker", ticker).Msg("recent cache unreadable, discarding")
		return true, ReasonCorrupt, g.invalidate(ticker, ReasonCorrupt)
	case err != nil:
		return false, "", err
	}

	latest := series.Bars[0].Time
	for _, b := range series.Bars[1:] {
		if b.Time.After(latest) {
			latest = b.Time
		}
	}

	yesterday := model.DateOf(now).AddDate(0, 0, -1)
	if latest.Equal(yesterday) {
		log.Debug().Str("ticker", ticker).Str("latest", latest.Format(model.DateLayout)).Msg("recent cache is fresh")
		return false, ReasonFresh, nil
	}

	log.Info().Str("ticker", ticker).Str("latest", latest.Format(model.DateLayout)).
		Str("want", yesterday.Format(model.DateLayout)).Msg("recent cache is stale")
	return true, ReasonStale, g.invalidate(ticker, ReasonStale)
}

func (g *Gate) invalidate(ticker string, reason Reason) error {
	if err := g.store.DeleteClean(ticker); err != nil {
		return err
	}
	if g.OnInvalidate != nil {
		g.OnInvalidate(ticker, reason)
	}
	return nil
}
