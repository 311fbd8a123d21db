package pricemodel

import (
	"context"
	"fmt"
	"time"
)

// Oracle is the excluded external collaborator: a black-box clustering-based
// price oracle returning a point prediction, a confidence interval and a
// confidence level. OracleWrapper adapts it to PriceModel so the Ensemble
// can mix it with the built-in models uniformly.
type Oracle interface {
	Predict(ctx context.Context, target time.Time) (price, lower, upper, confidence float64, err error)
}

// OracleWrapper adapts an Oracle to PriceModel. Fit only records that it
// was called: the oracle self-calibrates. When the oracle reports a low confidence, OracleWrapper
// does not drop the reading — it implements confidenceDamped so the
// Ensemble scales its weight down proportionally instead (Open Question
// resolution: damped, not None).
type OracleWrapper struct {
	oracle       Oracle
	lastConfidence float64
	fitted         bool
}

func NewOracleWrapper(oracle Oracle) *OracleWrapper {
	return &OracleWrapper{oracle: oracle, lastConfidence: 1.0}
}

func (m *OracleWrapper) Name() string          { return "reference_oracle" }
func (m *OracleWrapper) Description() string   { return "wraps the externally supplied clustering-based price oracle" }
func (m *OracleWrapper) RequiredData() []string { return []string{"external_oracle"} }

// Fit only marks the wrapper as fitted: the oracle's own fit/calibration
// is opaque to this process.
func (m *OracleWrapper) Fit(ctx context.Context, history []HistoryPoint) error {
	m.fitted = true
	return nil
}

func (m *OracleWrapper) Predict(ctx context.Context, target time.Time) (Prediction, error) {
	if !m.fitted {
		return Prediction{}, &ErrNotFitted{ModelName: m.Name()}
	}
	price, lower, upper, confidence, err := m.oracle.Predict(ctx, target)
	if err != nil {
		return Prediction{}, fmt.Errorf("pricemodel oracle wrapper: %w", err)
	}
	m.lastConfidence = clip01(confidence)
	return Prediction{
		ModelName:       m.Name(),
		Date:            target,
		PredictedPrice:  price,
		CILower:         lower,
		CIUpper:         upper,
		ConfidenceLevel: m.lastConfidence,
	}, nil
}

// DampingConfidence implements confidenceDamped.
func (m *OracleWrapper) DampingConfidence() float64 {
	return m.lastConfidence
}
