package pricemodel

import (
	"context"
	"math"
	"time"
)

const (
	blocksPerHalving = 210000
	baseSubsidyBTC   = 50.0
	blocksPerYear    = 52560 // 6 blocks/hour * 24 * 365, the deterministic 10-minute target
)

// subsidyAtHeight returns the block subsidy in BTC after the halvings
// completed by height — a pure function of height, no external data.
func subsidyAtHeight(height int64) float64 {
	halvings := height / blocksPerHalving
	return baseSubsidyBTC / math.Pow(2, float64(halvings))
}

// stockAtHeight sums the subsidy schedule from genesis through height.
func stockAtHeight(height int64) float64 {
	var total float64
	remaining := height
	subsidy := baseSubsidyBTC
	for remaining > 0 {
		span := int64(blocksPerHalving)
		if remaining < span {
			span = remaining
		}
		total += subsidy * float64(span)
		remaining -= span
		subsidy /= 2
	}
	return total
}

// estimatedHeightAtDate assumes the deterministic 10-minute block target
// holds exactly; it is a modelling approximation, not a chain query.
func estimatedHeightAtDate(date time.Time) int64 {
	minutes := date.Sub(genesisDate).Minutes()
	if minutes <= 0 {
		return 1
	}
	return int64(minutes / 10)
}

func stockToFlowAtHeight(height int64) float64 {
	flow := subsidyAtHeight(height) * blocksPerYear
	if flow <= 0 {
		return 0
	}
	return stockAtHeight(height) / flow
}

// StockToFlowModel fits log(price) = intercept + slope*log(stock/flow),
// PlanB's S2F regression, with stock/flow derived from the deterministic
// halving schedule rather than an external supply feed.
type StockToFlowModel struct {
	intercept, slope float64
	residualStd      float64
	fitted           bool
}

func NewStockToFlowModel() PriceModel {
	return &StockToFlowModel{}
}

func (m *StockToFlowModel) Name() string        { return "stock_to_flow" }
func (m *StockToFlowModel) Description() string { return "regression of price against the stock/flow ratio implied by the halving schedule" }
func (m *StockToFlowModel) RequiredData() []string { return []string{"daily_price_history"} }

func (m *StockToFlowModel) Fit(ctx context.Context, history []HistoryPoint) error {
	if len(history) < 2 {
		return &ErrNotFitted{ModelName: m.Name()}
	}
	xs := make([]float64, len(history))
	ys := make([]float64, len(history))
	for i, h := range history {
		height := estimatedHeightAtDate(h.Date)
		s2f := stockToFlowAtHeight(height)
		if s2f <= 0 {
			s2f = 1
		}
		xs[i] = math.Log(s2f)
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

func (m *StockToFlowModel) Predict(ctx context.Context, target time.Time) (Prediction, error) {
	if !m.fitted {
		return Prediction{}, &ErrNotFitted{ModelName: m.Name()}
	}
	height := estimatedHeightAtDate(target)
	s2f := stockToFlowAtHeight(height)
	if s2f <= 0 {
		s2f = 1
	}
	logPrice := m.intercept + m.slope*math.Log(s2f)
	price := math.Exp(logPrice)
	lower := math.Exp(logPrice - 1.96*m.residualStd)
	upper := math.Exp(logPrice + 1.96*m.residualStd)
	return Prediction{
		ModelName:       m.Name(),
		Date:            target,
		PredictedPrice:  price,
		CILower:         lower,
		CIUpper:         upper,
		ConfidenceLevel: 0.70,
	}, nil
}
