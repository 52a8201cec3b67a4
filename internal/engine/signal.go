package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Pmanos1/TestBot/internal/model"
	"github.com/Pmanos1/TestBot/internal/signal"
)

// Signal is the per-bar trading signal derived from the model forecast and
// the latest closed bar. It is recomputed on every bar close and never
// persisted.
type Signal struct {
	PredictedHigh float64
	PredictedLow  float64
	HLDiff        decimal.Decimal
}

// Evaluator builds the feature vector from the two most recent closed bars
// and queries the prediction service.
type Evaluator struct {
	predictor signal.Predictor
	logger    *zap.Logger
}

func NewEvaluator(predictor signal.Predictor, logger *zap.Logger) *Evaluator {
	return &Evaluator{predictor: predictor, logger: logger}
}

// Features derives the model input from the newest closed bar b1 and the one
// before it b2.
func Features(b1, b2 model.Bar) [signal.FeatureCount]float64 {
	return [signal.FeatureCount]float64{
		ratio(b1.Open, b2.Open),
		ratio(b1.High, b1.Open),
		ratio(b1.Low, b1.Open),
		ratio(b1.Close, b1.Open),
		b1.Volume.Sub(b2.Volume).InexactFloat64(),
	}
}

func ratio(a, b decimal.Decimal) float64 {
	if b.IsZero() {
		return 0
	}
	return a.Div(b).InexactFloat64()
}

// Evaluate returns the signal for the current window, or nil when the window
// holds fewer than two bars. A prediction-service failure yields an error and
// no signal: the engine fails closed and waits for the next bar.
func (e *Evaluator) Evaluate(ctx context.Context, window []model.Bar) (*Signal, error) {
	if len(window) < 2 {
		return nil, nil
	}

	b1 := window[len(window)-1]
	b2 := window[len(window)-2]

	high, low, err := e.predictor.Predict(ctx, Features(b1, b2))
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	if b1.Low.IsZero() {
		return nil, fmt.Errorf("latest bar has zero low, cannot compute hl_diff")
	}

	sig := &Signal{
		PredictedHigh: high,
		PredictedLow:  low,
		HLDiff:        b1.High.Div(b1.Low),
	}
	e.logger.Info("signal evaluated",
		zap.Float64("predicted_high", sig.PredictedHigh),
		zap.Float64("predicted_low", sig.PredictedLow),
		zap.String("hl_diff", sig.HLDiff.String()),
	)
	return sig, nil
}
