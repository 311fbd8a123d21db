package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

// vddHistoryRequiredDays is the minimum trailing daily-VDD history length
// required before vdd_multiple stops degrading to nil.
const vddHistoryRequiredDays = 365

// CDDVDD computes coin-days and value-days destroyed over a window (spec
// §4.4.6). vddHistory is the caller-supplied trailing daily-VDD series used
// for the 365-day moving average; with fewer than 365 points, VDDMultiple
// is left nil rather than the call failing.
func CDDVDD(ctx context.Context, r Reader, fromBlock, toBlock int64, windowDays int, height int64, vddHistory []float64) (models.CDDVDDResult, error) {
	if windowDays <= 0 {
		return models.CDDVDDResult{}, fmt.Errorf("cdd_vdd: window_days must be > 0")
	}

	totalCDD, totalVDD, err := sumCoinDaysDestroyed(ctx, r, fromBlock, toBlock)
	if err != nil {
		return models.CDDVDDResult{}, fmt.Errorf("cdd_vdd: %w", err)
	}

	dailyCDD := totalCDD / float64(windowDays)
	dailyVDD := totalVDD / float64(windowDays)
	meanCDD := dailyCDD

	var vddMultiple *float64
	if len(vddHistory) >= vddHistoryRequiredDays {
		ma := mean(vddHistory[len(vddHistory)-vddHistoryRequiredDays:])
		if ma > 0 {
			m := dailyVDD / ma
			vddMultiple = &m
		}
	}

	return models.NewCDDVDDResult(dailyCDD, meanCDD, dailyVDD, vddMultiple, windowDays, height, time.Now())
}
