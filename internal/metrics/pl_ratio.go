package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

// PLRatio computes the profit/loss ratio and dominance over a window (spec
// §4.4.7), reusing the same realised profit/loss sums as Sell-side Risk.
func PLRatio(ctx context.Context, r Reader, fromBlock, toBlock int64, windowDays int, height int64) (models.PLRatioResult, error) {
	profit, loss, err := sumRealizedProfitLoss(ctx, r, fromBlock, toBlock)
	if err != nil {
		return models.PLRatioResult{}, fmt.Errorf("pl_ratio: %w", err)
	}
	return models.NewPLRatioResult(profit, loss, windowDays, height, time.Now())
}
