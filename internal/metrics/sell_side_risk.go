package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

// SellSideRisk computes realised profit pressure relative to market cap
// over a window (spec §4.4.5).
func SellSideRisk(ctx context.Context, r Reader, currentPriceUSD float64, fromBlock, toBlock int64, windowDays int, height int64) (models.SellSideRiskResult, error) {
	if currentPriceUSD <= 0 {
		return models.SellSideRiskResult{}, fmt.Errorf("sell_side_risk: current_price_usd must be > 0")
	}

	profit, loss, err := sumRealizedProfitLoss(ctx, r, fromBlock, toBlock)
	if err != nil {
		return models.SellSideRiskResult{}, fmt.Errorf("sell_side_risk: %w", err)
	}

	unspentBTC, _, err := r.GetUnspentSupply(ctx, models.CohortFilter{})
	if err != nil {
		return models.SellSideRiskResult{}, fmt.Errorf("sell_side_risk: unspent supply: %w", err)
	}
	marketCap := currentPriceUSD * unspentBTC

	return models.NewSellSideRiskResult(profit, loss, marketCap, windowDays, height, time.Now())
}
