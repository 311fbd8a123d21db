package pricemodel

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// AggregationMethod is how an Ensemble combines component predictions.
type AggregationMethod string

const (
	WeightedAvg AggregationMethod = "weighted_avg"
	Median      AggregationMethod = "median"
	Min         AggregationMethod = "min"
	Max         AggregationMethod = "max"
)

type ensembleComponent struct {
	model  PriceModel
	weight float64
}

// Ensemble composes k registered models with weights summing to 1 under
// one of the four aggregation rules; the CI is aggregated element-wise
// under the same rule as the point prediction.
type Ensemble struct {
	components []ensembleComponent
	method     AggregationMethod
}

// NewEnsemble validates that models and weights line up one-to-one and
// that weights sum to 1±1e-2 before accepting them.
func NewEnsemble(models []PriceModel, weights []float64, method AggregationMethod) (*Ensemble, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("pricemodel ensemble: at least one component required")
	}
	if len(models) != len(weights) {
		return nil, fmt.Errorf("pricemodel ensemble: %d models but %d weights", len(models), len(weights))
	}
	switch method {
	case WeightedAvg, Median, Min, Max:
	default:
		return nil, fmt.Errorf("pricemodel ensemble: unknown aggregation method %q", method)
	}
	var sum float64
	components := make([]ensembleComponent, len(models))
	for i, m := range models {
		if weights[i] < 0 {
			return nil, fmt.Errorf("pricemodel ensemble: negative weight for %q", m.Name())
		}
		sum += weights[i]
		components[i] = ensembleComponent{model: m, weight: weights[i]}
	}
	if math.Abs(sum-1) > 1e-2 {
		return nil, fmt.Errorf("pricemodel ensemble: weights sum to %v, want 1±1e-2", sum)
	}
	return &Ensemble{components: components, method: method}, nil
}

// Predict fits nothing itself — components must already be fit — and
// aggregates their individual predictions.
func (e *Ensemble) Predict(ctx context.Context, target time.Time) (Prediction, error) {
	preds := make([]Prediction, len(e.components))
	effWeights := make([]float64, len(e.components))
	var weightSum float64

	for i, c := range e.components {
		p, err := c.model.Predict(ctx, target)
		if err != nil {
			return Prediction{}, fmt.Errorf("pricemodel ensemble: component %q: %w", c.model.Name(), err)
		}
		preds[i] = p
		w := c.weight
		if damped, ok := c.model.(confidenceDamped); ok {
			w *= damped.DampingConfidence()
		}
		effWeights[i] = w
		weightSum += w
	}
	if weightSum > 0 {
		for i := range effWeights {
			effWeights[i] /= weightSum
		}
	}

	prices := make([]float64, len(preds))
	lowers := make([]float64, len(preds))
	uppers := make([]float64, len(preds))
	confidences := make([]float64, len(preds))
	for i, p := range preds {
		prices[i] = p.PredictedPrice
		lowers[i] = p.CILower
		uppers[i] = p.CIUpper
		confidences[i] = p.ConfidenceLevel
	}

	price := aggregate(e.method, prices, effWeights)
	lower := aggregate(e.method, lowers, effWeights)
	upper := aggregate(e.method, uppers, effWeights)
	confidence := aggregate(e.method, confidences, effWeights)
	if lower > upper {
		lower, upper = upper, lower
	}

	meta := make(map[string]string, len(e.components))
	for i, c := range e.components {
		meta[c.model.Name()] = strconv.FormatFloat(effWeights[i], 'f', 4, 64)
	}

	return Prediction{
		ModelName:       "ensemble:" + string(e.method),
		Date:            target,
		PredictedPrice:  price,
		CILower:         lower,
		CIUpper:         upper,
		ConfidenceLevel: clip01(confidence),
		Metadata:        meta,
	}, nil
}

func aggregate(method AggregationMethod, values, weights []float64) float64 {
	switch method {
	case Median:
		return median(values)
	case Min:
		return minOf(values)
	case Max:
		return maxOf(values)
	default: // WeightedAvg
		var sum float64
		for i, v := range values {
			sum += v * weights[i]
		}
		return sum
	}
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
