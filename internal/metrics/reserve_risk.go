package metrics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

// reserveRiskWarnLow and reserveRiskWarnHigh bound the [0, 0.1] band
// outside which a Reserve Risk reading is logged; the narrower historical
// range [0.002, 0.02] is what reserve_risk_test.go checks a typical
// scenario against. A result outside the band still returns normally — it is logged, not rejected, since the multiplier's algebra
// is fixed and an out-of-band reading is a data signal, not a bug.
const (
	reserveRiskWarnLow  = 0.0
	reserveRiskWarnHigh = 0.1
)

// ReserveRisk computes the HODL-Bank-proxy-derived Reserve Risk (spec
// §4.4.4). hodl_bank is the cumulative coin-days destroyed (from genesis
// height 0 through height) divided by the current unspent supply — the
// average coin-days destroyed per unit of BTC still held, which is what
// cancels back out against unspent_supply in reserve_risk's denominator.
func ReserveRisk(ctx context.Context, r Reader, currentPriceUSD float64, height int64) (models.ReserveRiskResult, error) {
	if currentPriceUSD <= 0 {
		return models.ReserveRiskResult{}, fmt.Errorf("reserve_risk: current_price_usd must be > 0")
	}

	unspentBTC, _, err := r.GetUnspentSupply(ctx, models.CohortFilter{})
	if err != nil {
		return models.ReserveRiskResult{}, fmt.Errorf("reserve_risk: unspent supply: %w", err)
	}

	cumulativeCDD, _, err := sumCoinDaysDestroyed(ctx, r, 0, height)
	if err != nil {
		return models.ReserveRiskResult{}, fmt.Errorf("reserve_risk: %w", err)
	}

	hodlBank := 0.0
	if unspentBTC > 0 {
		hodlBank = cumulativeCDD / unspentBTC
	}
	reserveRisk := 0.0
	denom := hodlBank * unspentBTC
	if denom > 0 {
		reserveRisk = currentPriceUSD / denom
	}

	if reserveRisk < reserveRiskWarnLow || reserveRisk > reserveRiskWarnHigh {
		log.Printf("reserve_risk: height %d reserve_risk=%v outside validated band [%v, %v]", height, reserveRisk, reserveRiskWarnLow, reserveRiskWarnHigh)
	}

	return models.NewReserveRiskResult(reserveRisk, hodlBank, unspentBTC, currentPriceUSD, height, time.Now())
}
