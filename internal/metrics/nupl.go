package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

// NUPL computes Net Unrealised Profit/Loss: named in the component table
// (§2, "... Realised Cap, NUPL") alongside the MVRV family but not given
// its own §4.4 subsection — implemented here as a thin pass over the same
// market-cap/realised-cap pair MVRV already computes.
func NUPL(ctx context.Context, r Reader, currentPriceUSD float64, height int64) (models.NUPLResult, error) {
	if currentPriceUSD <= 0 {
		return models.NUPLResult{}, fmt.Errorf("nupl: current_price_usd must be > 0")
	}

	unspentBTC, _, err := r.GetUnspentSupply(ctx, models.CohortFilter{})
	if err != nil {
		return models.NUPLResult{}, fmt.Errorf("nupl: unspent supply: %w", err)
	}
	realisedCap, err := r.GetRealizedCap(ctx, models.CohortFilter{})
	if err != nil {
		return models.NUPLResult{}, fmt.Errorf("nupl: realized cap: %w", err)
	}
	marketCap := currentPriceUSD * unspentBTC

	return models.NewNUPLResult(marketCap, realisedCap, height, time.Now())
}
