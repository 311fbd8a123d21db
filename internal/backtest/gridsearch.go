package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rawblock/onchain-fusion/internal/fusion"
	"github.com/rawblock/onchain-fusion/pkg/models"
)

// WeightCombo is one candidate weight assignment, keyed by component
// name, under the active-weight-sum constraint (validated by fusion.Fuse
// itself via renormalisation; GridSearch additionally rejects combos
// whose raw sum is not close to 1 so the grid explores meaningfully
// distinct points rather than redundant renormalisations of the same
// ratio).
type WeightCombo map[string]float64

// GridSearchResult reports the best combo found on the training split and
// its held-out performance on the last 30% of the window.
type GridSearchResult struct {
	BestWeights WeightCombo
	TrainResult Result
	TestResult  Result
}

// GridSearch sweeps grid, evaluating each combo's cumulative return on the
// first 70% of [cfg.Start, cfg.End) and reporting the winner's performance
// on the held-out last 30% — selection and evaluation never touch the
// same days.
func GridSearch(ctx context.Context, cfg Config, votes VoteSource, prices PriceSeries, grid []WeightCombo, baseConfig fusion.Config) (GridSearchResult, error) {
	if len(grid) == 0 {
		return GridSearchResult{}, fmt.Errorf("backtest grid search: empty grid")
	}
	trainCfg, testCfg := splitWindow(cfg)

	var best WeightCombo
	var bestResult Result
	bestReturn := math.Inf(-1)

	for _, combo := range grid {
		if err := validateCombo(combo); err != nil {
			return GridSearchResult{}, err
		}
		reweighted := &weightOverrideSource{inner: votes, combo: combo}
		r, err := Run(ctx, trainCfg, reweighted, prices, baseConfig)
		if err != nil {
			return GridSearchResult{}, fmt.Errorf("backtest grid search: train run: %w", err)
		}
		if r.CumulativeReturn > bestReturn {
			bestReturn = r.CumulativeReturn
			best = combo
			bestResult = r
		}
	}

	testSource := &weightOverrideSource{inner: votes, combo: best}
	testResult, err := Run(ctx, testCfg, testSource, prices, baseConfig)
	if err != nil {
		return GridSearchResult{}, fmt.Errorf("backtest grid search: test run: %w", err)
	}

	return GridSearchResult{BestWeights: best, TrainResult: bestResult, TestResult: testResult}, nil
}

// weightOverrideSource replaces each vote's configured weight with the
// grid combo's value for its component name (leaving the vote/confidence
// untouched), so one VoteSource can be swept across many weight combos
// without recomputing the underlying votes each time.
type weightOverrideSource struct {
	inner VoteSource
	combo WeightCombo
}

func (w *weightOverrideSource) Votes(ctx context.Context, asOf time.Time) ([]models.SignalVote, error) {
	original, err := w.inner.Votes(ctx, asOf)
	if err != nil {
		return nil, err
	}
	out := make([]models.SignalVote, len(original))
	for i, v := range original {
		weight := v.Weight
		if combo, ok := w.combo[v.Name]; ok {
			weight = combo
		}
		sv, err := models.NewSignalVote(v.Name, v.Vote, v.Confidence, weight)
		if err != nil {
			return nil, err
		}
		out[i] = sv
	}
	return out, nil
}

func validateCombo(combo WeightCombo) error {
	var sum float64
	for _, w := range combo {
		if w < 0 {
			return fmt.Errorf("backtest grid search: negative weight in combo %v", combo)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-2 {
		return fmt.Errorf("backtest grid search: combo %v weights sum to %v, want 1±1e-2", combo, sum)
	}
	return nil
}

func splitWindow(cfg Config) (train, test Config) {
	total := cfg.End.Sub(cfg.Start)
	trainDur := time.Duration(float64(total) * 0.70)
	split := cfg.Start.Add(trainDur)

	train = cfg
	train.End = split
	test = cfg
	test.Start = split
	return train, test
}
