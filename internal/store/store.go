// Package store reads and writes the per-ticker series files: the static
// historical snapshot, the raw and cleaned recent caches, and the combined
// snapshot produced by reconciliation.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"StockPulse/internal/apperr"
	"StockPulse/internal/collector"
	"StockPulse/internal/model"
)

// Paths locates the series files.
type Paths struct {
	HistoricalDir string
	DataDir       string
	CombineDir    string
}

// Store is the SeriesStore.
type Store struct {
	paths Paths
}

// New creates a Store rooted at the given directories.
func New(paths Paths) *Store {
	return &Store{paths: paths}
}

func (s *Store) HistoricalPath(ticker string) string {
	return filepath.Join(s.paths.HistoricalDir, ticker+".csv")
}

func (s *Store) historicalWorkbookPath(ticker string) string {
	return filepath.Join(s.paths.HistoricalDir, ticker+".xlsx")
}

func (s *Store) RawPath(ticker string) string {
	return filepath.Join(s.paths.DataDir, ticker+"_recent.csv")
}

func (s *Store) CleanPath(ticker string) string {
	return filepath.Join(s.paths.DataDir, ticker+"_clean.csv")
}

func (s *Store) CombinedPath(ticker string) string {
	return filepath.Join(s.paths.CombineDir, ticker+"_combine.csv")
}

// LoadHistorical reads the static historical snapshot, normalizing whatever
// header layout it was exported with. The CSV file is preferred; an .xlsx
// workbook with the same base name is the fallback. A missing snapshot yields
// an empty series.
func (s *Store) LoadHistorical(ticker string) (*model.PriceSeries, error) {
	var raw *model.RawTable
	var err error

	path := s.HistoricalPath(ticker)
	raw, err = readRawCSV(path)
	if errors.Is(err, os.ErrNotExist) {
		path = s.historicalWorkbookPath(ticker)
		raw, err = readRawWorkbook(path)
	}
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("ticker", ticker).Str("dir", s.paths.HistoricalDir).Msg("historical snapshot not found")
		return &model.PriceSeries{Symbol: ticker}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read historical %s: %w", path, err)
	}

	series, err := collector.Normalize(ticker, raw, collector.MissingReject)
	if err != nil {
		return nil, fmt.Errorf("normalize historical %s: %w", path, err)
	}
	log.Info().Str("ticker", ticker).Str("path", path).Int("rows", series.Len()).Msg("loaded historical data")
	return series, nil
}

// ReadClean reads the cleaned recent cache. A missing file returns an error
// satisfying errors.Is(err, os.ErrNotExist); an empty or malformed file
// returns CorruptCache.
func (s *Store) ReadClean(ticker string) (*model.PriceSeries, error) {
	return readSeries(ticker, s.CleanPath(ticker))
}

// ReadCombined reads the last reconciled snapshot.
func (s *Store) ReadCombined(ticker string) (*model.PriceSeries, error) {
	return readSeries(ticker, s.CombinedPath(ticker))
}

// WriteRaw persists the fetched table exactly as received.
func (s *Store) WriteRaw(ticker string, raw *model.RawTable) error {
	return writeAtomic(s.RawPath(ticker), raw.Rows)
}

// WriteClean persists the normalized recent series.
func (s *Store) WriteClean(ticker string, series *model.PriceSeries) error {
	return writeAtomic(s.CleanPath(ticker), seriesRecords(series))
}

// WriteCombined rewrites the combined snapshot in full.
func (s *Store) WriteCombined(ticker string, series *model.PriceSeries) error {
	return writeAtomic(s.CombinedPath(ticker), seriesRecords(series))
}

// DeleteClean removes the cleaned recent cache. Missing files are ignored.
func (s *Store) DeleteClean(ticker string) error {
	return removeIfExists(s.CleanPath(ticker))
}

// Cleanup removes every derived cache for ticker and returns the paths removed.
func (s *Store) Cleanup(ticker string) ([]string, error) {
	var removed []string
	for _, p := range []string{s.CleanPath(ticker), s.RawPath(ticker), s.CombinedPath(ticker)} {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", p).Msg("cache file not found, skipping")
			continue
		}
		if err := os.Remove(p); err != nil {
			return removed, fmt.Errorf("remove %s: %w", p, err)
		}
		log.Info().Str("path", p).Msg("deleted cache file")
		removed = append(removed, p)
	}
	return removed, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func seriesRecords(series *model.PriceSeries) [][]string {
	records := make([][]string, 0, series.Len()+1)
	records = append(records, model.CanonicalColumns)
	for _, b := range series.Bars {
		records = append(records, []string{
			b.Time.Format(model.DateLayout),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatInt(b.Volume, 10),
		})
	}
	return records
}

// readSeries strictly parses a canonical cache file.
func readSeries(ticker, path string) (*model.PriceSeries, error) {
	raw, err := readRawCSV(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err != nil {
		return nil, apperr.CorruptCache("read", path, err)
	}
	if len(raw.Rows) < 2 {
		return nil, apperr.CorruptCache("read", path, errors.New("no data rows"))
	}
	header := raw.Rows[0]
	if len(header) != len(model.CanonicalColumns) {
		return nil, apperr.CorruptCache("read", path, fmt.Errorf("unexpected header %v", header))
	}
	for i, name := range model.CanonicalColumns {
		if !strings.EqualFold(strings.TrimSpace(header[i]), name) {
			return nil, apperr.CorruptCache("read", path, fmt.Errorf("unexpected header %v", header))
		}
	}

	series := &model.PriceSeries{Symbol: ticker, Bars: make([]model.OHLCV, 0, len(raw.Rows)-1)}
	for n, r := range raw.Rows[1:] {
		bar, err := parseCanonical(r)
		if err != nil {
			return nil, apperr.CorruptCache("read", path, fmt.Errorf("row %d: %w", n+2, err))
		}
		series.Bars = append(series.Bars, bar)
	}
	return series, nil
}

func parseCanonical(r []string) (model.OHLCV, error) {
	if len(r) != len(model.CanonicalColumns) {
		return model.OHLCV{}, fmt.Errorf("expected %d fields, got %d", len(model.CanonicalColumns), len(r))
	}
	date, err := collector.ParseDate(r[0])
	if err != nil {
		return model.OHLCV{}, err
	}
	var vals [5]float64
	for i := range vals {
		v, err := collector.ParseNumber(r[i+1])
		if err != nil {
			return model.OHLCV{}, fmt.Errorf("%s: %w", model.CanonicalColumns[i+1], err)
		}
		vals[i] = v
	}
	return model.OHLCV{Time: date, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: int64(vals[4])}, nil
}

func readRawCSV(path string) (*model.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		rows = append(rows, rec)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return &model.RawTable{Source: path, Rows: rows}, nil
}

func readRawWorkbook(path string) (*model.RawTable, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return &model.RawTable{Source: path, Rows: rows}, nil
}

// writeAtomic writes records to a temp file beside path and renames it into
// place, so readers never observe a partially written file.
func writeAtomic(path string, records [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write records: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	log.Debug().Str("path", path).Int("records", len(records)).Msg("wrote csv")
	return nil
}
