package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"StockPulse/internal/apperr"
)

// LinearModel is a linear autoregressive model: the prediction is the dot
// product of the batch with Weights plus Bias. Its artifact is a JSON file
// exported by the training job.
type LinearModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// PredictOne implements Model.
func (m *LinearModel) PredictOne(_ context.Context, batch []float64) (float64, error) {
	if len(batch) != len(m.Weights) {
		return 0, fmt.Errorf("batch length %d does not match model input %d", len(batch), len(m.Weights))
	}
	y := m.Bias
	for i, v := range batch {
		y += m.Weights[i] * v
	}
	return y, nil
}

// FileLoader loads LinearModel artifacts named <ticker>_model.json from Dir.
type FileLoader struct {
	Dir      string
	TimeStep int
}

// NewFileLoader creates a FileLoader.
func NewFileLoader(dir string, timeStep int) *FileLoader {
	return &FileLoader{Dir: dir, TimeStep: timeStep}
}

// Path returns the artifact location for ticker.
func (l *FileLoader) Path(ticker string) string {
	return filepath.Join(l.Dir, ticker+"_model.json")
}

// Load implements Loader.
func (l *FileLoader) Load(_ context.Context, ticker string) (Model, error) {
	path := l.Path(ticker)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.ModelNotFound("load model", ticker, path)
	}
	if err != nil {
		return nil, apperr.ModelUnusable("load model", ticker, fmt.Errorf("read %s: %w", path, err))
	}

	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperr.ModelUnusable("load model", ticker, fmt.Errorf("parse %s: %w", path, err))
	}
	if l.TimeStep > 0 && len(m.Weights) != l.TimeStep {
		return nil, apperr.ModelUnusable("load model", ticker,
			fmt.Errorf("%s expects %d inputs, configured time step is %d", path, len(m.Weights), l.TimeStep))
	}
	return &m, nil
}
