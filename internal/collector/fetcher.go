package collector

import (
	"context"
	"time"

	"StockPulse/internal/model"
)

// Fetcher defines the interface for fetching daily market data.
// end is exclusive.
type Fetcher interface {
	FetchDaily(ctx context.Context, symbol string, start, end time.Time) (*model.RawTable, error)
	Name() string
}

// rawHeader is the column layout fetchers emit.
var rawHeader = []string{"Date", "Open", "High", "Low", "Close", "Adj Close", "Volume"}
