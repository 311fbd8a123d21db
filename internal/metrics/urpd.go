package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

// urpdConfidence is fixed: URPD is a direct aggregation with no history
// requirement, so its confidence never varies by input.
const urpdConfidence = 0.70

// URPD computes the UTXO Realised Price Distribution (spec §4.4.1): unspent
// BTC grouped into bucketSizeUSD-wide price bands, plus supply above/below
// the current price and the dominant bucket.
func URPD(ctx context.Context, r Reader, bucketSizeUSD, currentPriceUSD float64, height int64, filter models.CohortFilter) (models.URPDResult, error) {
	if bucketSizeUSD <= 0 {
		return models.URPDResult{}, fmt.Errorf("urpd: bucket_size_usd must be > 0")
	}
	if currentPriceUSD <= 0 {
		return models.URPDResult{}, fmt.Errorf("urpd: current_price_usd must be > 0")
	}

	rows, err := r.GroupUnspentByPriceBucket(ctx, bucketSizeUSD, filter)
	if err != nil {
		return models.URPDResult{}, fmt.Errorf("urpd: %w", err)
	}

	var totalBTC float64
	for _, row := range rows {
		totalBTC += row.BTC
	}

	buckets := make([]models.URPDBucket, len(rows))
	var supplyAbove, supplyBelow float64
	dominant := 0
	for i, row := range rows {
		pct := 0.0
		if totalBTC > 0 {
			pct = row.BTC / totalBTC * 100
		}
		buckets[i] = models.URPDBucket{
			PriceLow:   row.PriceLow,
			PriceHigh:  row.PriceHigh,
			BTC:        row.BTC,
			Count:      row.Count,
			PctOfTotal: pct,
		}
		if row.PriceLow > currentPriceUSD {
			supplyAbove += row.BTC
		} else {
			supplyBelow += row.BTC
		}
		if row.BTC > rows[dominant].BTC || (row.BTC == rows[dominant].BTC && row.PriceLow < rows[dominant].PriceLow) {
			dominant = i
		}
	}

	// Bucket percentages can drift from an exact 100.00 by float rounding
	// across many buckets; redistribute the residual onto the dominant
	// bucket so the closure invariant holds to the documented tolerance.
	if len(buckets) > 0 {
		sum := 0.0
		for _, b := range buckets {
			sum += b.PctOfTotal
		}
		buckets[dominant].PctOfTotal += 100 - sum
	}

	return models.NewURPDResult(buckets, supplyAbove, supplyBelow, dominant, currentPriceUSD, bucketSizeUSD, urpdConfidence, height, time.Now())
}
