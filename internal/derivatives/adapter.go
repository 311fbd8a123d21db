package derivatives

import (
	"context"
	"time"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

const (
	queryRetryBase   = 1 * time.Second
	queryRetryFactor = 2
	queryRetryCap    = 3
	queryTimeout     = 5 * time.Second
)

// withQueryRetry retries fn with exponential backoff (base 1s, factor 2,
// cap 3 attempts), matching priceindex's retry shape — the same bounded
// retry policy applied to a different external collaborator.
func withQueryRetry(ctx context.Context, fn func() error) error {
	delay := queryRetryBase
	var err error
	for attempt := 1; attempt <= queryRetryCap; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == queryRetryCap {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= queryRetryFactor
	}
	return err
}

// fundingSource is the read collaborator FundingAdapter needs; *Source
// satisfies it. Declared as an interface so tests can substitute a fake
// without standing up a Postgres instance.
type fundingSource interface {
	LatestFundingRate(ctx context.Context, symbol string, at time.Time) (rate float64, ts time.Time, ok bool, err error)
}

// oiSource is the read collaborator OpenInterestAdapter needs.
type oiSource interface {
	OpenInterestAt(ctx context.Context, symbol string, at time.Time) (value float64, ts time.Time, ok bool, err error)
}

// FundingAdapter converts the funding-rate series for one symbol into
// signal votes.
type FundingAdapter struct {
	source fundingSource
	symbol string
	weight float64
}

func NewFundingAdapter(source *Source, symbol string, weight float64) *FundingAdapter {
	return &FundingAdapter{source: source, symbol: symbol, weight: weight}
}

// Vote produces the funding-rate component's contribution to fusion at
// time at. A nil Vote (None) is returned, never an error, when the source
// is unreachable, the query exhausts its retries, or no row aligns within
// the staleness window — C5 recovers locally per spec §7.
func (a *FundingAdapter) Vote(ctx context.Context, at time.Time) models.SignalVote {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rate float64
	var ok bool
	err := withQueryRetry(queryCtx, func() error {
		r, _, found, err := a.source.LatestFundingRate(queryCtx, a.symbol, at)
		if err != nil {
			return err
		}
		rate, ok = r, found
		return nil
	})

	if err != nil || !ok {
		sv, _ := models.NewSignalVote("funding", nil, 0, a.weight)
		return sv
	}
	fv := ConvertFundingRate(rate)
	vote := fv.Vote
	confidence := 0.70
	if fv.IsExtreme {
		confidence = 0.85
	}
	sv, _ := models.NewSignalVote("funding", &vote, confidence, a.weight)
	return sv
}

// OpenInterestAdapter converts the open-interest series for one symbol,
// combined with an externally-supplied whale-direction context, into
// signal votes.
type OpenInterestAdapter struct {
	source   oiSource
	symbol   string
	weight   float64
	lookback time.Duration
}

func NewOpenInterestAdapter(source *Source, symbol string, weight float64, lookback time.Duration) *OpenInterestAdapter {
	return &OpenInterestAdapter{source: source, symbol: symbol, weight: weight, lookback: lookback}
}

// Vote produces the open-interest component's contribution to fusion at
// time at, given the whale-direction context from its own (excluded)
// collaborator. Never returns an error; unavailability degrades to a
// None vote.
func (a *OpenInterestAdapter) Vote(ctx context.Context, at time.Time, whale WhaleContext) models.SignalVote {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var oiNow, oiPrev float64
	var nowOK, prevOK bool
	err := withQueryRetry(queryCtx, func() error {
		now, _, ok1, err := a.source.OpenInterestAt(queryCtx, a.symbol, at)
		if err != nil {
			return err
		}
		prev, _, ok2, err := a.source.OpenInterestAt(queryCtx, a.symbol, at.Add(-a.lookback))
		if err != nil {
			return err
		}
		oiNow, nowOK = now, ok1
		oiPrev, prevOK = prev, ok2
		return nil
	})

	if err != nil || !nowOK || !prevOK {
		sv, _ := models.NewSignalVote("open_interest", nil, 0, a.weight)
		return sv
	}
	oiv := ConvertOpenInterest(oiNow, oiPrev, whale)
	vote := oiv.Vote
	confidence := 0.60
	if oiv.Context == "confirming" || oiv.Context == "diverging" {
		confidence = 0.75
	}
	sv, _ := models.NewSignalVote("open_interest", &vote, confidence, a.weight)
	return sv
}
