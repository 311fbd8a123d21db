package fusion

import (
	"math"
	"testing"
	"time"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

func mustVote(t *testing.T, name string, vote *float64, confidence, weight float64) models.SignalVote {
	t.Helper()
	v, err := models.NewSignalVote(name, vote, confidence, weight)
	if err != nil {
		t.Fatalf("NewSignalVote(%s) error = %v", name, err)
	}
	return v
}

func f(v float64) *float64 { return &v }

// TestFuse_S5 reproduces scenario S5: the (signal_mean, signal_std, action)
// triple must be stable to >=6 decimals across repeated runs with the same
// seed and inputs.
func TestFuse_S5(t *testing.T) {
	votes := []models.SignalVote{
		mustVote(t, "whale", f(0.6), 0.8, 0.4),
		mustVote(t, "utxo", f(0.3), 0.9, 0.2),
		mustVote(t, "funding", f(-0.5), 0.7, 0.25),
		mustVote(t, "oi", f(0.2), 0.6, 0.15),
	}
	cfg := Config{Samples: 1000, Seed: 42, PerturbK: 0.25, BimodalSaddleDepth: 0.30}
	at := time.Unix(0, 0)

	r1, err := Fuse(votes, cfg, at)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	r2, err := Fuse(votes, cfg, at)
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}

	const tol = 1e-6
	if math.Abs(r1.SignalMean-r2.SignalMean) > tol {
		t.Errorf("signal_mean differs across runs: %v vs %v", r1.SignalMean, r2.SignalMean)
	}
	if math.Abs(r1.SignalStd-r2.SignalStd) > tol {
		t.Errorf("signal_std differs across runs: %v vs %v", r1.SignalStd, r2.SignalStd)
	}
	if r1.Action != r2.Action {
		t.Errorf("action differs across runs: %v vs %v", r1.Action, r2.Action)
	}
}

// TestFuse_S6 reproduces scenario S6: dropping funding/oi (None) from a
// 4-component call must match an explicit 2-component call after weight
// renormalisation (0.4/0.2 -> 0.667/0.333).
func TestFuse_S6(t *testing.T) {
	cfg := Config{Samples: 1000, Seed: 42, PerturbK: 0.25, BimodalSaddleDepth: 0.30}
	at := time.Unix(0, 0)

	degraded := []models.SignalVote{
		mustVote(t, "whale", f(0.6), 0.8, 0.4),
		mustVote(t, "utxo", f(0.3), 0.9, 0.2),
		mustVote(t, "funding", nil, 0, 0.25),
		mustVote(t, "oi", nil, 0, 0.15),
	}
	explicit := []models.SignalVote{
		mustVote(t, "whale", f(0.6), 0.8, 0.4),
		mustVote(t, "utxo", f(0.3), 0.9, 0.2),
	}

	rDegraded, err := Fuse(degraded, cfg, at)
	if err != nil {
		t.Fatalf("Fuse(degraded) error = %v", err)
	}
	rExplicit, err := Fuse(explicit, cfg, at)
	if err != nil {
		t.Fatalf("Fuse(explicit) error = %v", err)
	}

	if math.Abs(rDegraded.SignalMean-rExplicit.SignalMean) > 1e-9 {
		t.Errorf("signal_mean: degraded=%v explicit=%v", rDegraded.SignalMean, rExplicit.SignalMean)
	}
	if math.Abs(rDegraded.CILower-rExplicit.CILower) > 1e-9 || math.Abs(rDegraded.CIUpper-rExplicit.CIUpper) > 1e-9 {
		t.Errorf("CI: degraded=[%v,%v] explicit=[%v,%v]", rDegraded.CILower, rDegraded.CIUpper, rExplicit.CILower, rExplicit.CIUpper)
	}
	if rDegraded.Action != rExplicit.Action {
		t.Errorf("action: degraded=%v explicit=%v", rDegraded.Action, rExplicit.Action)
	}

	wantWeights := map[string]float64{"whale": 0.667, "utxo": 0.333}
	for _, c := range rExplicit.Components {
		if math.Abs(c.RenormalisedWeight-wantWeights[c.Name]) > 1e-2 {
			t.Errorf("renormalised weight for %s = %v, want ~%v", c.Name, c.RenormalisedWeight, wantWeights[c.Name])
		}
	}
}

// TestFuse_WeightsRenormaliseToOne covers property 6.
func TestFuse_WeightsRenormaliseToOne(t *testing.T) {
	votes := []models.SignalVote{
		mustVote(t, "whale", f(0.6), 0.8, 0.4),
		mustVote(t, "utxo", f(0.3), 0.9, 0.2),
		mustVote(t, "funding", f(-0.1), 0.5, 0.25),
	}
	res, err := Fuse(votes, DefaultConfig(), time.Unix(0, 0))
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	var sum float64
	for _, c := range res.Components {
		sum += c.RenormalisedWeight
	}
	if math.Abs(sum-1) > 1e-2 {
		t.Errorf("renormalised weight sum = %v, want 1±1e-2", sum)
	}
}

// TestFuse_ZeroComponents covers the degenerate case.
func TestFuse_ZeroComponents(t *testing.T) {
	votes := []models.SignalVote{
		mustVote(t, "whale", nil, 0, 0.4),
		mustVote(t, "utxo", nil, 0, 0.2),
	}
	res, err := Fuse(votes, DefaultConfig(), time.Unix(0, 0))
	if err != nil {
		t.Fatalf("Fuse() error = %v", err)
	}
	if res.Distribution != models.DistributionDegenerate {
		t.Errorf("Distribution = %v, want insufficient_data", res.Distribution)
	}
	if res.Action != models.ActionHold {
		t.Errorf("Action = %v, want HOLD", res.Action)
	}
	if res.ActionConfidence != 0 {
		t.Errorf("ActionConfidence = %v, want 0", res.ActionConfidence)
	}
	if res.SignalMean != 0 {
		t.Errorf("SignalMean = %v, want 0", res.SignalMean)
	}
}

func TestFuse_ActionThresholds(t *testing.T) {
	cases := []struct {
		name string
		vote float64
		want models.Action
	}{
		{"strong_buy", 0.9, models.ActionBuy},
		{"strong_sell", -0.9, models.ActionSell},
		{"neutral", 0.0, models.ActionHold},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			votes := []models.SignalVote{mustVote(t, "whale", f(c.vote), 0.95, 1.0)}
			res, err := Fuse(votes, DefaultConfig(), time.Unix(0, 0))
			if err != nil {
				t.Fatalf("Fuse() error = %v", err)
			}
			if res.Action != c.want {
				t.Errorf("Action = %v, want %v (mean=%v)", res.Action, c.want, res.SignalMean)
			}
		})
	}
}
