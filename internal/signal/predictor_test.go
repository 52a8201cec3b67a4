package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPPredictor_Predict(t *testing.T) {
	var got predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(predictResponse{PredictedHigh: 0.012, PredictedLow: 0.004})
	}))
	defer srv.Close()

	p := NewHTTPPredictor(srv.URL)
	high, low, err := p.Predict(context.Background(), [FeatureCount]float64{1.05, 1.02, 0.98, 1.01, 30})
	assert.NoError(t, err)
	assert.Equal(t, 0.012, high)
	assert.Equal(t, 0.004, low)
	assert.Equal(t, []float64{1.05, 1.02, 0.98, 1.01, 30}, got.Features)
}

func TestHTTPPredictor_Non200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPPredictor(srv.URL)
	_, _, err := p.Predict(context.Background(), [FeatureCount]float64{})
	assert.Error(t, err)
}

func TestHTTPPredictor_Ready(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	p := NewHTTPPredictor(srv.URL)
	assert.True(t, p.Ready(context.Background()))

	healthy = false
	assert.False(t, p.Ready(context.Background()))
}

func TestHTTPPredictor_UnreachableService(t *testing.T) {
	p := NewHTTPPredictor("http://127.0.0.1:1")
	_, _, err := p.Predict(context.Background(), [FeatureCount]float64{})
	assert.Error(t, err)
	assert.False(t, p.Ready(context.Background()))
}
