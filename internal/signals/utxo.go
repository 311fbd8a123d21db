// Package signals combines the on-chain metric library's individual
// results (C4) into the single "utxo" component the fusion engine
// consumes. The metric library itself stays zone-per-metric; this is the
// one place those zones are folded into a signed vote.
package signals

import (
	"context"

	"github.com/rawblock/onchain-fusion/internal/metrics"
	"github.com/rawblock/onchain-fusion/pkg/models"
)

// zoneScore maps a metric's classification zone to a signed contrarian
// score in [-1, 1]: capitulation/distress zones score positive
// (accumulate), euphoria/froth zones score negative (distribute).
var zoneScore = map[models.Zone]float64{
	models.ZoneCapitulation:  1.0,
	models.ZoneBull:          0.3,
	models.ZoneTransition:    -0.3,
	models.ZoneEuphoria:      -1.0,
	models.ZoneAccumulation:  1.0,
	models.ZoneNormal:        0.0,
	models.ZoneCaution:       -0.3,
	models.ZoneExtremeSell:   -1.0,
	models.ZoneStrongBuy:     1.0,
	models.ZoneFairValue:     0.0,
	models.ZoneDistribution:  -1.0,
	models.ZoneLow:           0.4,
	models.ZoneElevated:      -0.2,
	models.ZoneAggressive:    -0.8,
	models.ZoneExtremeProfit: -0.8,
	models.ZoneProfit:        -0.3,
	models.ZoneNeutral:       0.0,
	models.ZoneLoss:          0.3,
	models.ZoneExtremeLoss:   0.8,
}

// UTXOVoteInputs bundles the metric window parameters UTXOVote needs to
// call the metric library itself.
type UTXOVoteInputs struct {
	CurrentPriceUSD  float64
	Height           int64
	STHLTHCutoffDays int
	MarketCapHistory []float64
}

// UTXOVote runs MVRV, Reserve Risk, and Supply-in-Profit/Loss and folds
// their zone classifications into one "utxo" vote, equal-weighted across
// the three — the implementation's resolution of the otherwise-unspecified
// whale/utxo component composition, recorded in DESIGN.md.
func UTXOVote(ctx context.Context, r metrics.Reader, in UTXOVoteInputs, weight float64) (models.SignalVote, error) {
	mvrv, err := metrics.MVRV(ctx, r, in.CurrentPriceUSD, in.Height, in.STHLTHCutoffDays, in.MarketCapHistory)
	if err != nil {
		return models.SignalVote{}, err
	}
	rr, err := metrics.ReserveRisk(ctx, r, in.CurrentPriceUSD, in.Height)
	if err != nil {
		return models.SignalVote{}, err
	}
	spl, err := metrics.SupplyInProfitLoss(ctx, r, in.CurrentPriceUSD, in.Height, in.STHLTHCutoffDays)
	if err != nil {
		return models.SignalVote{}, err
	}

	vote := (zoneScore[mvrv.Zone] + zoneScore[rr.Zone] + zoneScore[spl.MarketPhase]) / 3
	vote = clip(vote, -1, 1)

	confidence := 0.65
	if mvrv.MVRVZ == 0 {
		// MVRV-Z degraded to its insufficient-history sentinel; the
		// composite is leaning on two metrics instead of three.
		confidence = 0.55
	}

	sv, err := models.NewSignalVote("utxo", &vote, confidence, weight)
	if err != nil {
		return models.SignalVote{}, err
	}
	return sv, nil
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
