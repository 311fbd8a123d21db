// Package backtest implements the walk-forward signal backtester (C8): it
// replays the fusion engine across a historical window against realised
// prices and reports win rate, cumulative return, Sharpe ratio, and
// maximum drawdown.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rawblock/onchain-fusion/internal/fusion"
	"github.com/rawblock/onchain-fusion/pkg/models"
)

// VoteSource produces the component votes usable as of asOf — callers are
// responsible for ensuring it never reads data timestamped after asOf;
// the no-lookahead guarantee is enforced by construction (the backtester
// never passes a date later than the day under evaluation) and verified
// by the assertions in backtest_test.go.
type VoteSource interface {
	Votes(ctx context.Context, asOf time.Time) ([]models.SignalVote, error)
}

// PriceSeries resolves the realised USD price at an arbitrary timestamp.
type PriceSeries interface {
	PriceAt(ctx context.Context, at time.Time) (float64, error)
}

// Config bounds one walk-forward run.
type Config struct {
	Start              time.Time
	End                time.Time
	HoldTolerancePct   float64 // default 0.005 (±0.5%)
	MaxConcurrentDays  int     // default 8
}

// DayResult is one day's evaluated outcome.
type DayResult struct {
	Date   time.Time
	Action models.Action
	Win    bool
	Return float64 // signed return attributed to the strategy for this day
}

// Result aggregates a completed (or partially completed, on cancellation)
// walk-forward run. RunID identifies the run for correlation across logs
// and stored grid-search candidates.
type Result struct {
	RunID            string
	ActionCounts     map[models.Action]int
	WinRate          float64
	CumulativeReturn float64
	SharpeRatio      float64
	MaxDrawdown      float64
	Days             []DayResult
	Partial          bool
}

// Run replays votes and prices across [cfg.Start, cfg.End) one day at a
// time, fusing each day's votes with fcfg and scoring the action against
// the realised 24h-forward price move. Days fan out across a bounded
// worker pool (golang.org/x/sync/errgroup) since each day's vote
// computation and fusion is independent and CPU-bound. On context
// cancellation, Run returns the best-effort partial result instead of an
// error — a cancellation token's worth of behaviour expressed through
// ctx, the Go-idiomatic equivalent.
func Run(ctx context.Context, cfg Config, votes VoteSource, prices PriceSeries, fcfg fusion.Config) (Result, error) {
	if cfg.HoldTolerancePct == 0 {
		cfg.HoldTolerancePct = 0.005
	}
	if cfg.MaxConcurrentDays == 0 {
		cfg.MaxConcurrentDays = 8
	}

	days := enumerateDays(cfg.Start, cfg.End)
	dayResults := make([]DayResult, len(days))
	completed := make([]bool, len(days))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, cfg.MaxConcurrentDays)
	for i, d := range days {
		i, d := i, d
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			r, err := evaluateDay(gctx, d, votes, prices, fcfg, cfg.HoldTolerancePct)
			if err != nil {
				return fmt.Errorf("backtest day %s: %w", d.Format("2006-01-02"), err)
			}
			dayResults[i] = r
			completed[i] = true
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return Result{}, err
	}

	finished := make([]DayResult, 0, len(dayResults))
	for i, ok := range completed {
		if ok {
			finished = append(finished, dayResults[i])
		}
	}
	result := aggregate(finished)
	result.RunID = uuid.New().String()
	result.Partial = err != nil
	return result, nil
}

func evaluateDay(ctx context.Context, d time.Time, votes VoteSource, prices PriceSeries, fcfg fusion.Config, holdTolerance float64) (DayResult, error) {
	v, err := votes.Votes(ctx, d)
	if err != nil {
		return DayResult{}, fmt.Errorf("votes: %w", err)
	}
	fr, err := fusion.Fuse(v, fcfg, d)
	if err != nil {
		return DayResult{}, fmt.Errorf("fuse: %w", err)
	}
	priceNow, err := prices.PriceAt(ctx, d)
	if err != nil {
		return DayResult{}, fmt.Errorf("price now: %w", err)
	}
	priceFwd, err := prices.PriceAt(ctx, d.Add(24*time.Hour))
	if err != nil {
		return DayResult{}, fmt.Errorf("price forward: %w", err)
	}
	move := (priceFwd - priceNow) / priceNow

	win := classifyWin(fr.Action, move, holdTolerance)
	ret := signedReturn(fr.Action, move)
	return DayResult{Date: d, Action: fr.Action, Win: win, Return: ret}, nil
}

func classifyWin(action models.Action, move, holdTolerance float64) bool {
	switch action {
	case models.ActionBuy:
		return move > 0
	case models.ActionSell:
		return move < 0
	default:
		return math.Abs(move) <= holdTolerance
	}
}

func signedReturn(action models.Action, move float64) float64 {
	switch action {
	case models.ActionBuy:
		return move
	case models.ActionSell:
		return -move
	default:
		return 0
	}
}

func aggregate(days []DayResult) Result {
	counts := map[models.Action]int{models.ActionBuy: 0, models.ActionSell: 0, models.ActionHold: 0}
	var wins int
	returns := make([]float64, len(days))
	equity := 1.0
	peak := 1.0
	var maxDrawdown float64

	for i, d := range days {
		counts[d.Action]++
		if d.Win {
			wins++
		}
		returns[i] = d.Return
		equity *= 1 + d.Return
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	var winRate float64
	if len(days) > 0 {
		winRate = float64(wins) / float64(len(days))
	}

	m := meanOf(returns)
	sd := stdevOf(returns, m)
	var sharpe float64
	if sd > 0 {
		sharpe = m / sd * math.Sqrt(365)
	}

	return Result{
		ActionCounts:     counts,
		WinRate:          winRate,
		CumulativeReturn: equity - 1,
		SharpeRatio:      sharpe,
		MaxDrawdown:      maxDrawdown,
		Days:             days,
	}
}

func enumerateDays(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; d.Before(end); d = d.Add(24 * time.Hour) {
		days = append(days, d)
	}
	return days
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdevOf(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		diff := x - m
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}
