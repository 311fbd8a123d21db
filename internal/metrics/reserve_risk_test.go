package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

// TestReserveRisk_WithinValidatedBand drives a scenario whose HODL-Bank
// multiplier lands inside the historical Reserve-Risk range [0.002, 0.02]
// the spec validates the algebra against, and checks the resulting zone.
func TestReserveRisk_WithinValidatedBand(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Now().Add(-4 * 24 * time.Hour)
	if err := s.InsertUTXOBatch(ctx, []models.UTXO{
		{Txid: "a", VoutIndex: 0, BTCValue: 1000000, CreationBlock: 100, CreationTime: created, CreationPriceUSD: 10000},
		{Txid: "b", VoutIndex: 0, BTCValue: 1.0, CreationBlock: 100, CreationTime: created, CreationPriceUSD: 10000},
	}); err != nil {
		t.Fatalf("InsertUTXOBatch() error = %v", err)
	}
	if err := s.MarkSpent(ctx, "a", 0, 200, time.Now(), 20000); err != nil {
		t.Fatalf("MarkSpent() error = %v", err)
	}

	// cumulative CDD ~= 1,000,000 BTC * 4 days = 4,000,000; "b" stays
	// unspent so the unspent supply is non-zero (with none, reserve_risk is
	// 0); reserve_risk = current_price / cdd = 40000 / 4,000,000 = 0.01,
	// inside [0.002, 0.02].
	res, err := ReserveRisk(ctx, s, 40000, 250)
	if err != nil {
		t.Fatalf("ReserveRisk() error = %v", err)
	}
	if res.ReserveRisk < reserveRiskWarnLow || res.ReserveRisk > reserveRiskWarnHigh {
		t.Errorf("ReserveRisk = %v, want inside the validated [%v, %v] band for this scenario", res.ReserveRisk, reserveRiskWarnLow, reserveRiskWarnHigh)
	}
	if res.Zone != models.ZoneFairValue {
		t.Errorf("Zone = %v, want FAIR_VALUE", res.Zone)
	}
}

// TestReserveRisk_OutsideValidatedBandStillSucceeds exercises a case
// where coin-days destroyed since genesis is small relative to the
// current price, pushing reserve_risk above the [0, 0.1] band the spec
// says to flag. The function still returns a normal result — the
// out-of-band reading is logged, not rejected.
func TestReserveRisk_OutsideValidatedBandStillSucceeds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Now().Add(-1 * time.Hour)
	if err := s.InsertUTXOBatch(ctx, []models.UTXO{
		{Txid: "a", VoutIndex: 0, BTCValue: 1.0, CreationBlock: 100, CreationTime: created, CreationPriceUSD: 10000},
		{Txid: "b", VoutIndex: 0, BTCValue: 1.0, CreationBlock: 100, CreationTime: created, CreationPriceUSD: 10000},
	}); err != nil {
		t.Fatalf("InsertUTXOBatch() error = %v", err)
	}
	if err := s.MarkSpent(ctx, "a", 0, 200, time.Now(), 20000); err != nil {
		t.Fatalf("MarkSpent() error = %v", err)
	}

	res, err := ReserveRisk(ctx, s, 40000, 250)
	if err != nil {
		t.Fatalf("ReserveRisk() error = %v, want a result even though it is out of band", err)
	}
	if res.ReserveRisk <= reserveRiskWarnHigh {
		t.Fatalf("ReserveRisk = %v, want > %v for this scenario (tiny cumulative CDD)", res.ReserveRisk, reserveRiskWarnHigh)
	}
}
