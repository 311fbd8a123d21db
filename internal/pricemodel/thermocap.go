package pricemodel

import (
	"context"
	"math"
	"time"
)

// ThermocapModel fits the historical ratio of market cap to thermocap
// (cumulative miner revenue valued at the price paid on the day each
// coin was issued) and projects price forward by holding that multiple
// constant. Thermocap itself is built from the same closed-form halving
// schedule stock-to-flow uses, valued day-by-day at the fit history's
// own prices rather than an external miner-revenue feed.
type ThermocapModel struct {
	meanMultiple, stdMultiple float64
	lastThermocap             float64
	lastHeight                int64
	lastPrice                 float64
	fitted                    bool
}

func NewThermocapModel() PriceModel {
	return &ThermocapModel{}
}

func (m *ThermocapModel) Name() string        { return "thermocap_multiple" }
func (m *ThermocapModel) Description() string { return "reverts price toward a historically stable market-cap/thermocap multiple" }
func (m *ThermocapModel) RequiredData() []string { return []string{"daily_price_history"} }

func (m *ThermocapModel) Fit(ctx context.Context, history []HistoryPoint) error {
	if len(history) < 2 {
		return &ErrNotFitted{ModelName: m.Name()}
	}
	sorted := make([]HistoryPoint, len(history))
	copy(sorted, history)
	sortHistoryByDate(sorted)

	firstHeight := estimatedHeightAtDate(sorted[0].Date)
	thermocap := stockAtHeight(firstHeight) * sorted[0].Price
	prevHeight := firstHeight

	multiples := make([]float64, 0, len(sorted))
	for i, h := range sorted {
		height := estimatedHeightAtDate(h.Date)
		if i > 0 {
			minedDelta := stockAtHeight(height) - stockAtHeight(prevHeight)
			thermocap += minedDelta * h.Price
		}
		marketCap := stockAtHeight(height) * h.Price
		if thermocap > 0 {
			multiples = append(multiples, marketCap/thermocap)
		}
		prevHeight = height
	}

	m.meanMultiple = mean(multiples)
	m.stdMultiple = stdev(multiples, m.meanMultiple)
	m.lastThermocap = thermocap
	m.lastHeight = prevHeight
	m.lastPrice = sorted[len(sorted)-1].Price
	m.fitted = true
	return nil
}

func (m *ThermocapModel) Predict(ctx context.Context, target time.Time) (Prediction, error) {
	if !m.fitted {
		return Prediction{}, &ErrNotFitted{ModelName: m.Name()}
	}
	height := estimatedHeightAtDate(target)
	thermocap := m.lastThermocap
	if height > m.lastHeight {
		minedDelta := stockAtHeight(height) - stockAtHeight(m.lastHeight)
		thermocap += minedDelta * m.lastPrice
	}
	supply := stockAtHeight(height)
	if supply <= 0 || thermocap <= 0 {
		return Prediction{}, &ErrNotFitted{ModelName: m.Name()}
	}

	price := m.meanMultiple * thermocap / supply
	lowMultiple := m.meanMultiple - 1.96*m.stdMultiple
	highMultiple := m.meanMultiple + 1.96*m.stdMultiple
	lower := math.Max(0, lowMultiple) * thermocap / supply
	upper := highMultiple * thermocap / supply

	return Prediction{
		ModelName:       m.Name(),
		Date:            target,
		PredictedPrice:  price,
		CILower:         lower,
		CIUpper:         upper,
		ConfidenceLevel: 0.60,
	}, nil
}

func sortHistoryByDate(h []HistoryPoint) {
	for i := 1; i < len(h); i++ {
		for j := i; j > 0 && h[j].Date.Before(h[j-1].Date); j-- {
			h[j], h[j-1] = h[j-1], h[j]
		}
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}
