// Package metrics implements the on-chain metric library (C4): pure
// functions of a store snapshot, a current price, a block height, and an
// optional window, each returning one of the frozen result types in
// pkg/models. Aggregations are pushed into the store's SQL methods; the
// one exception is the spent-window sums (spent_window.go), which walk the
// store's SpentIterator over the spends in a block range row by row.
package metrics

import (
	"context"
	"time"

	"github.com/rawblock/onchain-fusion/internal/store"
	"github.com/rawblock/onchain-fusion/pkg/models"
)

// Reader is the read contract C4 needs from C1. Satisfied by
// *store.Store; declared narrowly here so metrics never depend on the
// store package's write methods.
type Reader interface {
	GetUnspentSupply(ctx context.Context, filter models.CohortFilter) (btc float64, count int64, err error)
	GetRealizedCap(ctx context.Context, filter models.CohortFilter) (float64, error)
	GetProfitLossBreakdown(ctx context.Context, currentPriceUSD, breakevenFrac float64, filter models.CohortFilter) (inProfit, inLoss, breakeven float64, err error)
	GroupUnspentByPriceBucket(ctx context.Context, bucketSizeUSD float64, filter models.CohortFilter) ([]models.PriceBucket, error)
	GetSpentInWindow(ctx context.Context, fromBlock, toBlock int64) (*store.SpentIterator, error)
}

// blocksPerDay is the Bitcoin network's nominal block cadence, used
// throughout C4 to convert block-height spans into day counts.
const blocksPerDay = 144

// sthCutoffBlock returns the creation-block cutoff separating short-term
// from long-term holders at currentHeight: rows with creation_block >
// cutoff are STH, the rest LTH.
func sthCutoffBlock(currentHeight int64, cutoffDays int) int64 {
	cutoff := currentHeight - int64(cutoffDays)*blocksPerDay
	if cutoff < 0 {
		return 0
	}
	return cutoff
}

func dateString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
