package collector

import (
	"context"
	"strconv"
	"time"

	"StockPulse/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price float64
	Table *model.RawTable
	Err   error
	Calls int
	// Hook, when set, runs at the start of every fetch.
	Hook func(ctx context.Context)
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchDaily(ctx context.Context, _ string, start, end time.Time) (*model.RawTable, error) {
	m.Calls++
	if m.Hook != nil {
		m.Hook(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Table != nil {
		return m.Table, nil
	}
	return generateMockTable(m.Price, start, end), nil
}

// generateMockTable emits one row per weekday in [start, end) on a gentle ramp.
func generateMockTable(basePrice float64, start, end time.Time) *model.RawTable {
	table := &model.RawTable{Source: "mock", Rows: [][]string{rawHeader}}
	i := 0
	for d := model.DateOf(start); d.Before(model.DateOf(end)); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		p := basePrice * (1 + float64(i)*0.001)
		table.Rows = append(table.Rows, []string{
			d.Format(model.DateLayout),
			strconv.FormatFloat(p*0.999, 'f', 4, 64),
			strconv.FormatFloat(p*1.005, 'f', 4, 64),
			strconv.FormatFloat(p*0.995, 'f', 4, 64),
			strconv.FormatFloat(p, 'f', 4, 64),
			strconv.FormatFloat(p, 'f', 4, 64),
			"1000000",
		})
		i++
	}
	return table
}
