package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"StockPulse/internal/apperr"
)

// ServingLoader resolves models hosted by a TensorFlow Serving REST endpoint.
// The model name for a ticker is "<ticker>_model" unless NameFor overrides it.
type ServingLoader struct {
	BaseURL string
	Client  *http.Client
	NameFor func(ticker string) string
}

// NewServingLoader creates a ServingLoader.
func NewServingLoader(baseURL string, timeout time.Duration) *ServingLoader {
	return &ServingLoader{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (l *ServingLoader) modelName(ticker string) string {
	if l.NameFor != nil {
		return l.NameFor(ticker)
	}
	return ticker + "_model"
}

type modelStatus struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
	} `json:"model_version_status"`
}

// Load checks the model status endpoint and returns a client bound to the
// model. A 404 or a model with no AVAILABLE version is ModelNotFound.
func (l *ServingLoader) Load(ctx context.Context, ticker string) (Model, error) {
	name := l.modelName(ticker)
	endpoint := fmt.Sprintf("%s/v1/models/%s", l.BaseURL, url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperr.ModelUnusable("load model", ticker, fmt.Errorf("create request: %w", err))
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.ModelUnusable("load model", ticker, fmt.Errorf("query model status: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperr.ModelNotFound("load model", ticker, endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.ModelUnusable("load model", ticker, fmt.Errorf("model status returned %d", resp.StatusCode))
	}

	var status modelStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, apperr.ModelUnusable("load model", ticker, fmt.Errorf("decode model status: %w", err))
	}
	for _, v := range status.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			log.Debug().Str("ticker", ticker).Str("model", name).Str("version", v.Version).Msg("serving model available")
			return &ServingModel{endpoint: endpoint + ":predict", client: l.Client}, nil
		}
	}
	return nil, apperr.ModelNotFound("load model", ticker, endpoint+" (no available version)")
}

// ServingModel calls the :predict endpoint of one served model.
type ServingModel struct {
	endpoint string
	client   *http.Client
}

type predictRequest struct {
	Instances [][][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error"`
}

// PredictOne sends the batch as a single (timeStep, 1) instance.
func (m *ServingModel) PredictOne(ctx context.Context, batch []float64) (float64, error) {
	instance := make([][]float64, len(batch))
	for i, v := range batch {
		instance[i] = []float64{v}
	}
	body, err := json.Marshal(predictRequest{Instances: [][][]float64{instance}})
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("predict request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	var out predictResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.Error != "" {
		return 0, fmt.Errorf("predict returned %d: %s", resp.StatusCode, out.Error)
	}
	if len(out.Predictions) != 1 || len(out.Predictions[0]) != 1 {
		return 0, fmt.Errorf("unexpected prediction shape %v", out.Predictions)
	}
	return out.Predictions[0][0], nil
}
