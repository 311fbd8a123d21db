package models

import "time"

// SignalVote is one component's contribution to the fusion engine (C6). A
// nil Vote means the component abstained (e.g. a derivatives adapter that
// could not reach its database) and is dropped before weight renormalisation
// rather than treated as a vote of 0.
type SignalVote struct {
	Name       string
	Vote       *float64 // in [-1, 1] when non-nil
	Confidence float64  // in [0, 1]
	Weight     float64  // configured weight, pre-renormalisation
}

func NewSignalVote(name string, vote *float64, confidence, weight float64) (SignalVote, error) {
	if name == "" {
		return SignalVote{}, newValidationError("SignalVote", "Name", "must not be empty")
	}
	if vote != nil && !validSignal(*vote) {
		return SignalVote{}, newValidationError("SignalVote", "Vote", "must be in [-1,1]")
	}
	if !validConf(confidence) {
		return SignalVote{}, newValidationError("SignalVote", "Confidence", "must be in [0,1]")
	}
	if weight < 0 {
		return SignalVote{}, newValidationError("SignalVote", "Weight", "must be >= 0")
	}
	return SignalVote{Name: name, Vote: vote, Confidence: confidence, Weight: weight}, nil
}

// DistributionType classifies the shape of the Monte-Carlo resampled signal
// distribution.
type DistributionType string

const (
	DistributionUnimodal  DistributionType = "unimodal"
	DistributionBimodal   DistributionType = "bimodal"
	DistributionDegenerate DistributionType = "insufficient_data"
)

// Action is the recommendation the fusion engine emits.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// ComponentContribution records one vote's realised weight and value inside
// a FusionResult, after None-vote dropping and renormalisation.
type ComponentContribution struct {
	Name            string
	Vote            float64
	RenormalisedWeight float64
}

// FusionResult is the frozen output of the Monte-Carlo fusion engine (C6).
type FusionResult struct {
	SignalMean          float64
	SignalStd           float64
	CILower             float64
	CIUpper             float64
	Action              Action
	ActionConfidence    float64
	Components          []ComponentContribution
	DerivativesAvailable bool
	Distribution        DistributionType
	NSamples            int
	Seed                int64
	ComputedAt          time.Time
}

func NewFusionResult(mean, std, ciLower, ciUpper float64, action Action, actionConfidence float64, components []ComponentContribution, derivativesAvailable bool, dist DistributionType, nSamples int, seed int64, at time.Time) (FusionResult, error) {
	if !validConf(actionConfidence) {
		return FusionResult{}, newValidationError("FusionResult", "ActionConfidence", "must be in [0,1]")
	}
	if ciLower > ciUpper {
		return FusionResult{}, newValidationError("FusionResult", "CILower", "must be <= CIUpper")
	}
	if nSamples <= 0 {
		return FusionResult{}, newValidationError("FusionResult", "NSamples", "must be > 0")
	}
	sumWeight := 0.0
	for _, c := range components {
		if !validSignal(c.Vote) {
			return FusionResult{}, newValidationError("FusionResult", "Components[].Vote", "must be in [-1,1]")
		}
		sumWeight += c.RenormalisedWeight
	}
	if len(components) > 0 && sumWeight > 0 && absFloat(sumWeight-1) > 0.01 {
		return FusionResult{}, newValidationError("FusionResult", "Components[].RenormalisedWeight", "must sum to 1.0±0.01")
	}
	return FusionResult{
		SignalMean:           mean,
		SignalStd:            std,
		CILower:              ciLower,
		CIUpper:              ciUpper,
		Action:               action,
		ActionConfidence:     actionConfidence,
		Components:           components,
		DerivativesAvailable: derivativesAvailable,
		Distribution:         dist,
		NSamples:             nSamples,
		Seed:                 seed,
		ComputedAt:           at,
	}, nil
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
