package collector

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"StockPulse/internal/model"
)

// barsClient is the subset of the Alpaca market data client we use.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaFetcher implements Fetcher using the Alpaca market data API.
type AlpacaFetcher struct {
	client barsClient
}

// NewAlpacaFetcher creates a fetcher authenticated with the given key pair.
func NewAlpacaFetcher(apiKey, apiSecret string) *AlpacaFetcher {
	return &AlpacaFetcher{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
	}
}

func (f *AlpacaFetcher) Name() string { return "alpaca" }

// FetchDaily downloads daily bars in [start, end). The Alpaca client has no
// context support, so cancellation is honored only before the call.
func (f *AlpacaFetcher) FetchDaily(ctx context.Context, symbol string, start, end time.Time) (*model.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars, err := f.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end.Add(-time.Nanosecond),
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca fetch bars: %w", err)
	}

	table := &model.RawTable{Source: f.Name(), Rows: make([][]string, 0, len(bars)+1)}
	table.Rows = append(table.Rows, rawHeader)
	for _, b := range bars {
		table.Rows = append(table.Rows, []string{
			b.Timestamp.UTC().Format(model.DateLayout),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			"",
			strconv.FormatFloat(float64(b.Volume), 'f', -1, 64),
		})
	}
	return table, nil
}
