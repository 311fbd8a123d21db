package pricemodel

import (
	"context"
	"math"
	"time"
)

// genesisDate is the Bitcoin genesis block timestamp, the power law's time
// origin.
var genesisDate = time.Date(2009, time.January, 3, 0, 0, 0, 0, time.UTC)

// PowerLawModel fits log(price) = intercept + slope*log(days since
// genesis), the standard long-run Bitcoin power-law regression.
type PowerLawModel struct {
	intercept, slope float64
	residualStd      float64
	fitted           bool
}

func NewPowerLawModel() PriceModel {
	return &PowerLawModel{}
}

func (m *PowerLawModel) Name() string          { return "power_law" }
func (m *PowerLawModel) Description() string   { return "log-log linear regression of price against days since genesis" }
func (m *PowerLawModel) RequiredData() []string { return []string{"daily_price_history"} }

func (m *PowerLawModel) Fit(ctx context.Context, history []HistoryPoint) error {
	if len(history) < 2 {
		return &ErrNotFitted{ModelName: m.Name()}
	}
	xs := make([]float64, len(history))
	ys := make([]float64, len(history))
	for i, h := range history {
		days := h.Date.Sub(genesisDate).Hours() / 24
		if days <= 0 {
			days = 1
		}
		xs[i] = math.Log(days)
		ys[i] = math.Log(h.Price)
	}
	slope, intercept := linearRegression(xs, ys)
	m.slope, m.intercept = slope, intercept

	var sumSq float64
	for i := range xs {
		resid := ys[i] - (intercept + slope*xs[i])
		sumSq += resid * resid
	}
	m.residualStd = math.Sqrt(sumSq / float64(len(xs)))
	m.fitted = true
	return nil
}

func (m *PowerLawModel) Predict(ctx context.Context, target time.Time) (Prediction, error) {
	if !m.fitted {
		return Prediction{}, &ErrNotFitted{ModelName: m.Name()}
	}
	days := target.Sub(genesisDate).Hours() / 24
	if days <= 0 {
		days = 1
	}
	logPrice := m.intercept + m.slope*math.Log(days)
	price := math.Exp(logPrice)
	lower := math.Exp(logPrice - 1.96*m.residualStd)
	upper := math.Exp(logPrice + 1.96*m.residualStd)
	return Prediction{
		ModelName:       m.Name(),
		Date:            target,
		PredictedPrice:  price,
		CILower:         lower,
		CIUpper:         upper,
		ConfidenceLevel: 0.80,
	}, nil
}

// linearRegression fits y = intercept + slope*x by ordinary least squares.
func linearRegression(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}
