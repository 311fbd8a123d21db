package derivatives

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

// TestConvertFundingRate_S3 reproduces scenario S3's three data points.
func TestConvertFundingRate_S3(t *testing.T) {
	cases := []struct {
		name      string
		rate      float64
		wantVote  float64
		wantExtrm bool
	}{
		{"extreme_high", 0.0015, -1.0, true},
		{"extreme_low", -0.00075, 1.0, true},
		{"deadband", 0.0001, 0.0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ConvertFundingRate(c.rate)
			if math.Abs(got.Vote-c.wantVote) > 1e-9 {
				t.Errorf("Vote = %v, want %v", got.Vote, c.wantVote)
			}
			if got.IsExtreme != c.wantExtrm {
				t.Errorf("IsExtreme = %v, want %v", got.IsExtreme, c.wantExtrm)
			}
		})
	}
}

// TestConvertFundingRate_Monotonic verifies property 4: vote is
// non-increasing as the raw funding rate increases (contrarian).
func TestConvertFundingRate_Monotonic(t *testing.T) {
	rates := []float64{-0.002, -0.001, -0.0005, -0.0001, 0, 0.0001, 0.0005, 0.001, 0.002}
	prevVote := math.Inf(1)
	for _, r := range rates {
		v := ConvertFundingRate(r).Vote
		if v > prevVote+1e-12 {
			t.Errorf("vote not monotonically non-increasing at rate=%v: got %v after %v", r, v, prevVote)
		}
		prevVote = v
	}
}

// TestConvertOpenInterest_S4 reproduces scenario S4.
func TestConvertOpenInterest_S4(t *testing.T) {
	got := ConvertOpenInterest(105, 100, WhaleDistribution)
	if math.Abs(got.Delta-0.05) > 1e-9 {
		t.Errorf("Delta = %v, want 0.05", got.Delta)
	}
	if math.Abs(got.Vote-(-0.3)) > 1e-9 {
		t.Errorf("Vote = %v, want -0.3", got.Vote)
	}
	if got.Context != "diverging" {
		t.Errorf("Context = %q, want diverging", got.Context)
	}
}

type fakeFundingSource struct {
	rate    float64
	ts      time.Time
	ok      bool
	failN   int
	calls   int
	err     error
}

func (f *fakeFundingSource) LatestFundingRate(ctx context.Context, symbol string, at time.Time) (float64, time.Time, bool, error) {
	f.calls++
	if f.calls <= f.failN {
		return 0, time.Time{}, false, errors.New("connection refused")
	}
	if f.err != nil {
		return 0, time.Time{}, false, f.err
	}
	return f.rate, f.ts, f.ok, nil
}

func TestFundingAdapter_Vote_Success(t *testing.T) {
	src := &fakeFundingSource{rate: 0.0015, ts: time.Now(), ok: true}
	a := &FundingAdapter{source: src, symbol: "BTC-PERP", weight: 0.25}
	vote := a.Vote(context.Background(), time.Now())
	if vote.Vote == nil {
		t.Fatalf("Vote is nil, want a populated vote")
	}
	if math.Abs(*vote.Vote-(-1.0)) > 1e-9 {
		t.Errorf("Vote = %v, want -1.0", *vote.Vote)
	}
	if vote.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85 (extreme)", vote.Confidence)
	}
}

func TestFundingAdapter_Vote_NoneWhenUnavailable(t *testing.T) {
	src := &fakeFundingSource{failN: 10}
	a := &FundingAdapter{source: src, symbol: "BTC-PERP", weight: 0.25}
	vote := a.Vote(context.Background(), time.Now())
	if vote.Vote != nil {
		t.Errorf("Vote = %v, want nil (None) on exhausted retries", *vote.Vote)
	}
	if vote.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0 for None vote", vote.Confidence)
	}
}

func TestFundingAdapter_Vote_NoneWhenStale(t *testing.T) {
	src := &fakeFundingSource{rate: 0.0005, ts: time.Now(), ok: false}
	a := &FundingAdapter{source: src, symbol: "BTC-PERP", weight: 0.25}
	vote := a.Vote(context.Background(), time.Now())
	if vote.Vote != nil {
		t.Errorf("Vote = %v, want nil (None) when source reports stale/missing row", *vote.Vote)
	}
}

func TestFundingAdapter_Vote_RetriesThenSucceeds(t *testing.T) {
	src := &fakeFundingSource{rate: 0, ts: time.Now(), ok: true, failN: 2}
	a := &FundingAdapter{source: src, symbol: "BTC-PERP", weight: 0.25}
	vote := a.Vote(context.Background(), time.Now())
	if vote.Vote == nil {
		t.Fatalf("Vote is nil, want success on the 3rd attempt")
	}
	if src.calls != 3 {
		t.Errorf("calls = %d, want 3", src.calls)
	}
}

type fakeOISource struct {
	values map[time.Time]float64
	now    float64
	prev   float64
	ok     bool
}

func (f *fakeOISource) OpenInterestAt(ctx context.Context, symbol string, at time.Time) (float64, time.Time, bool, error) {
	return f.now, at, f.ok, nil
}

func TestOpenInterestAdapter_Vote_NoneWhenUnavailable(t *testing.T) {
	src := &fakeOISource{ok: false}
	a := &OpenInterestAdapter{source: src, symbol: "BTC-PERP", weight: 0.15, lookback: time.Hour}
	vote := a.Vote(context.Background(), time.Now(), WhaleNeutral)
	if vote.Vote != nil {
		t.Errorf("Vote = %v, want nil (None)", *vote.Vote)
	}
}
