// Package fusion implements the Monte-Carlo signal fusion engine (C6): it
// combines heterogeneous signed votes, each carrying its own weight and
// confidence, into a single bounded recommendation with an uncertainty
// band. Missing components are dropped and the remaining weights
// renormalised before resampling.
package fusion

import (
	"math/rand"
	"sort"
	"time"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

const (
	buyThreshold  = 0.25
	sellThreshold = -0.25
)

// Config holds the fusion tunables loaded from configuration. The BUY/SELL
// action thresholds are the package constants buyThreshold and
// sellThreshold, not Config fields.
type Config struct {
	Samples            int     // N, default 1000
	Seed               int64   // default 42
	PerturbK           float64 // default 0.25
	BimodalSaddleDepth float64 // fraction of lower-mode height, default 0.30
}

// DefaultConfig mirrors the defaults internal/config applies when the
// corresponding environment variables are unset.
func DefaultConfig() Config {
	return Config{Samples: 1000, Seed: 42, PerturbK: 0.25, BimodalSaddleDepth: 0.30}
}

type activeComponent struct {
	name   string
	vote   float64
	sigma  float64
	weight float64
}

// Fuse runs the Monte-Carlo resampling algorithm over votes and returns the
// frozen FusionResult. With a fixed seed and an unchanged input set, the
// output is byte-reproducible — no global rand source is touched.
func Fuse(votes []models.SignalVote, cfg Config, at time.Time) (models.FusionResult, error) {
	active := make([]activeComponent, 0, len(votes))
	var weightSum float64
	for _, v := range votes {
		if v.Vote == nil {
			continue
		}
		weightSum += v.Weight
	}

	for _, v := range votes {
		if v.Vote == nil {
			continue
		}
		w := v.Weight
		if weightSum > 0 {
			w = v.Weight / weightSum
		}
		active = append(active, activeComponent{
			name:   v.Name,
			vote:   *v.Vote,
			sigma:  (1 - v.Confidence) * cfg.PerturbK,
			weight: w,
		})
	}

	if len(active) == 0 {
		return degenerateResult(cfg, at)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	samples := make([]float64, cfg.Samples)
	for i := 0; i < cfg.Samples; i++ {
		var s float64
		for _, c := range active {
			eps := rng.NormFloat64() * c.sigma
			perturbed := clip(c.vote+eps, -1, 1)
			s += c.weight * perturbed
		}
		samples[i] = s
	}

	mean := sampleMean(samples)
	std := sampleStdevPopulation(samples, mean)
	ciLower, ciUpper := percentileCI(samples, 0.025, 0.975)
	dist := classifyDistribution(samples, cfg.BimodalSaddleDepth)

	action := classifyAction(mean)
	confidence := actionAgreementFraction(samples, action)

	components := make([]models.ComponentContribution, len(active))
	derivativesAvailable := false
	for i, c := range active {
		components[i] = models.ComponentContribution{
			Name:               c.name,
			Vote:               c.vote,
			RenormalisedWeight: c.weight,
		}
		if c.name == "funding" || c.name == "open_interest" {
			derivativesAvailable = true
		}
	}

	return models.NewFusionResult(mean, std, ciLower, ciUpper, action, confidence, components, derivativesAvailable, dist, cfg.Samples, cfg.Seed, at)
}

func degenerateResult(cfg Config, at time.Time) (models.FusionResult, error) {
	return models.NewFusionResult(0, 0, -1, 1, models.ActionHold, 0, nil, false, models.DistributionDegenerate, cfg.Samples, cfg.Seed, at)
}

func classifyAction(mean float64) models.Action {
	switch {
	case mean > buyThreshold:
		return models.ActionBuy
	case mean < sellThreshold:
		return models.ActionSell
	default:
		return models.ActionHold
	}
}

func actionAgreementFraction(samples []float64, action models.Action) float64 {
	var agree int
	for _, s := range samples {
		switch action {
		case models.ActionBuy:
			if s > 0 {
				agree++
			}
		case models.ActionSell:
			if s < 0 {
				agree++
			}
		default:
			if s >= sellThreshold && s <= buyThreshold {
				agree++
			}
		}
	}
	if len(samples) == 0 {
		return 0
	}
	return float64(agree) / float64(len(samples))
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

// sortedCopy returns samples sorted ascending without mutating the input.
func sortedCopy(samples []float64) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)
	sort.Float64s(out)
	return out
}
