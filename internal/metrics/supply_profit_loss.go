package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

// breakevenFrac is the relative-distance threshold under which a UTXO's
// unrealised P/L counts as breakeven rather than profit or loss.
const breakevenFrac = 0.01

// supplyPLConfidence is fixed: like URPD, this is a direct aggregation
// with no history requirement to degrade against.
const supplyPLConfidence = 0.75

// SupplyInProfitLoss classifies the unspent set against currentPriceUSD
// (spec §4.4.2), splits it into short-term/long-term holder cohorts at the
// configured STH/LTH cutoff, and derives the overall market phase.
func SupplyInProfitLoss(ctx context.Context, r Reader, currentPriceUSD float64, height int64, sthLthCutoffDays int) (models.SupplyInProfitLossResult, error) {
	if currentPriceUSD <= 0 {
		return models.SupplyInProfitLossResult{}, fmt.Errorf("supply_in_profit_loss: current_price_usd must be > 0")
	}

	inProfit, inLoss, breakeven, err := r.GetProfitLossBreakdown(ctx, currentPriceUSD, breakevenFrac, models.CohortFilter{})
	if err != nil {
		return models.SupplyInProfitLossResult{}, fmt.Errorf("supply_in_profit_loss: %w", err)
	}
	total := inProfit + inLoss + breakeven
	pct := func(v float64) float64 {
		if total <= 0 {
			return 0
		}
		return v / total * 100
	}

	cutoff := sthCutoffBlock(height, sthLthCutoffDays)
	sthBTC, _, err := r.GetUnspentSupply(ctx, models.CohortMin(cutoff+1))
	if err != nil {
		return models.SupplyInProfitLossResult{}, fmt.Errorf("supply_in_profit_loss: sth supply: %w", err)
	}
	lthBTC, _, err := r.GetUnspentSupply(ctx, models.CohortMax(cutoff))
	if err != nil {
		return models.SupplyInProfitLossResult{}, fmt.Errorf("supply_in_profit_loss: lth supply: %w", err)
	}

	return models.NewSupplyInProfitLossResult(inProfit, inLoss, breakeven, pct(inProfit), pct(inLoss), pct(breakeven), sthBTC, lthBTC, supplyPLConfidence, height, time.Now())
}
