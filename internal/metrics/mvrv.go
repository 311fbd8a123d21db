package metrics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

// mvrvZHistoryRequiredDays is the minimum market-cap history length MVRV-Z
// needs before it stops degrading to the NORMAL zone.
const mvrvZHistoryRequiredDays = 30

// MVRV computes the Realised Cap / MVRV / MVRV-Z family (spec §4.4.3).
// marketCapHistory is the caller-supplied trailing daily market-cap series
// used for the MVRV-Z standard deviation; when it has fewer than 30 points
// or a zero stdev, MVRV-Z degrades to 0.0 in the NORMAL zone rather than
// failing the call — no history-shortfall error exists here, only the
// zoned result.
func MVRV(ctx context.Context, r Reader, currentPriceUSD float64, height int64, sthLthCutoffDays int, marketCapHistory []float64) (models.MVRVResult, error) {
	if currentPriceUSD <= 0 {
		return models.MVRVResult{}, fmt.Errorf("mvrv: current_price_usd must be > 0")
	}

	unspentBTC, _, err := r.GetUnspentSupply(ctx, models.CohortFilter{})
	if err != nil {
		return models.MVRVResult{}, fmt.Errorf("mvrv: unspent supply: %w", err)
	}
	realisedCap, err := r.GetRealizedCap(ctx, models.CohortFilter{})
	if err != nil {
		return models.MVRVResult{}, fmt.Errorf("mvrv: realized cap: %w", err)
	}
	marketCap := currentPriceUSD * unspentBTC

	cutoff := sthCutoffBlock(height, sthLthCutoffDays)
	sthRealised, err := r.GetRealizedCap(ctx, models.CohortMin(cutoff+1))
	if err != nil {
		return models.MVRVResult{}, fmt.Errorf("mvrv: sth realized cap: %w", err)
	}
	lthRealised, err := r.GetRealizedCap(ctx, models.CohortMax(cutoff))
	if err != nil {
		return models.MVRVResult{}, fmt.Errorf("mvrv: lth realized cap: %w", err)
	}

	mvrvZ := computeMVRVZ(marketCap, realisedCap, marketCapHistory)

	return models.NewMVRVResult(marketCap, realisedCap, mvrvZ, sthRealised, lthRealised, height, time.Now())
}

func computeMVRVZ(marketCap, realisedCap float64, history []float64) float64 {
	if len(history) < mvrvZHistoryRequiredDays {
		return 0.0
	}
	sd := stdev(history)
	if sd == 0 {
		return 0.0
	}
	return (marketCap - realisedCap) / sd
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
