// Package signal defines the forecasting-model collaborator. The model itself
// is trained and served elsewhere; the engine only sees a pure feature-vector
// to (predicted_high, predicted_low) call and must degrade to "no new signal"
// when the service is unavailable.
package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// FeatureCount is the fixed width of the model input.
const FeatureCount = 5

// Predictor produces a high/low forecast for the next bar.
type Predictor interface {
	Predict(ctx context.Context, features [FeatureCount]float64) (high, low float64, err error)
	Ready(ctx context.Context) bool
}

// HTTPPredictor calls a remote prediction service.
type HTTPPredictor struct {
	baseURL string
	client  *http.Client
}

func NewHTTPPredictor(baseURL string) *HTTPPredictor {
	return &HTTPPredictor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type predictRequest struct {
	Features []float64 `json:"features"`
}

type predictResponse struct {
	PredictedHigh float64 `json:"predicted_high"`
	PredictedLow  float64 `json:"predicted_low"`
}

func (p *HTTPPredictor) Predict(ctx context.Context, features [FeatureCount]float64) (float64, float64, error) {
	body, err := json.Marshal(predictRequest{Features: features[:]})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to marshal features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("prediction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("prediction service returned status %d", resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0, fmt.Errorf("failed to decode prediction: %w", err)
	}
	return out.PredictedHigh, out.PredictedLow, nil
}

// Ready reports whether the prediction service answers its health check.
func (p *HTTPPredictor) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
