// Package pricemodel implements the price model framework (C7): an
// abstract PriceModel contract, a name-keyed Registry, and an Ensemble
// that composes several registered models into one weighted prediction.
package pricemodel

import (
	"context"
	"fmt"
	"time"
)

// Prediction is what Predict returns for a single target date.
type Prediction struct {
	ModelName        string
	Date             time.Time
	PredictedPrice   float64
	CILower          float64
	CIUpper          float64
	ConfidenceLevel  float64 // in [0,1]
	Metadata         map[string]string
}

// PriceModel is the abstract contract every built-in and externally
// supplied price model implements. Predict requires a prior Fit call;
// implementations enforce this themselves (returning ErrNotFitted).
type PriceModel interface {
	Name() string
	Description() string
	RequiredData() []string
	Fit(ctx context.Context, history []HistoryPoint) error
	Predict(ctx context.Context, target time.Time) (Prediction, error)
}

// HistoryPoint is one (date, price) observation a model fits against.
type HistoryPoint struct {
	Date  time.Time
	Price float64
}

// ErrNotFitted is returned by Predict when Fit has not yet been called.
type ErrNotFitted struct {
	ModelName string
}

func (e *ErrNotFitted) Error() string {
	return fmt.Sprintf("pricemodel %s: predict called before fit", e.ModelName)
}

// confidenceDamped is implemented by models whose prediction confidence
// should scale their Ensemble weight instead of causing an outright drop
// (the reference-oracle wrapper's low-confidence behaviour).
type confidenceDamped interface {
	DampingConfidence() float64
}
