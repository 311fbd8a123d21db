package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rawblock/onchain-fusion/internal/backtest"
	"github.com/rawblock/onchain-fusion/internal/derivatives"
	"github.com/rawblock/onchain-fusion/internal/fusion"
	"github.com/rawblock/onchain-fusion/internal/signals"
	"github.com/rawblock/onchain-fusion/internal/store"
	"github.com/rawblock/onchain-fusion/pkg/models"
)

// btcGenesis and the 10-minute block cadence assumption mirror the
// stock-to-flow model's height estimate (internal/pricemodel) — the
// backtester needs the same date->height approximation to evaluate the
// utxo component on a historical day, since the store only maps height
// to timestamp, never the reverse.
var btcGenesis = time.Date(2009, time.January, 3, 18, 15, 5, 0, time.UTC)

const blocksPerDayEstimate = 144

func estimatedHeightAtDate(date time.Time) int64 {
	days := date.Sub(btcGenesis).Hours() / 24
	if days < 0 {
		return 0
	}
	return int64(days * blocksPerDayEstimate)
}

// storeVoteSource implements backtest.VoteSource against the lifecycle
// store plus an optional derivatives source, for a fixed whale vote
// supplied by the caller (whale-tracking is an excluded external
// collaborator; the backtest command treats it as constant across the
// replayed window rather than omitting it).
type storeVoteSource struct {
	st           *store.Store
	derivSrc     *derivatives.Source
	whaleVote    float64
	whaleContext derivatives.WhaleContext
	weights      voteWeights
}

type voteWeights struct {
	whale, utxo, funding, oi float64
	sthLthCutoffDays         int
}

func (s *storeVoteSource) Votes(ctx context.Context, asOf time.Time) ([]models.SignalVote, error) {
	height := estimatedHeightAtDate(asOf)
	price, err := s.st.GetDailyPrice(ctx, dateString(asOf))
	if err != nil {
		return nil, err
	}

	votes := make([]models.SignalVote, 0, 4)

	whale := s.whaleVote
	whaleSV, err := models.NewSignalVote("whale", &whale, 0.80, s.weights.whale)
	if err != nil {
		return nil, err
	}
	votes = append(votes, whaleSV)

	utxoSV, err := signals.UTXOVote(ctx, s.st, signals.UTXOVoteInputs{
		CurrentPriceUSD:  price,
		Height:           height,
		STHLTHCutoffDays: s.weights.sthLthCutoffDays,
	}, s.weights.utxo)
	if err != nil {
		return nil, err
	}
	votes = append(votes, utxoSV)

	if s.derivSrc != nil {
		fundingAdapter := derivatives.NewFundingAdapter(s.derivSrc, "BTC-PERP", s.weights.funding)
		votes = append(votes, fundingAdapter.Vote(ctx, asOf))
		oiAdapter := derivatives.NewOpenInterestAdapter(s.derivSrc, "BTC-PERP", s.weights.oi, time.Hour)
		votes = append(votes, oiAdapter.Vote(ctx, asOf, s.whaleContext))
	}

	return votes, nil
}

func dateString(t time.Time) string { return t.UTC().Format("2006-01-02") }

type storePriceSeries struct{ st *store.Store }

func (p *storePriceSeries) PriceAt(ctx context.Context, at time.Time) (float64, error) {
	return p.st.GetDailyPrice(ctx, dateString(at))
}

func newBacktestCmd() *cobra.Command {
	var startDate, endDate string
	var optimize bool
	var whaleVote float64
	var whaleContext string

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "walk-forward replay the fusion engine against realised prices",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			ctx := context.Background()

			start, err := time.Parse("2006-01-02", startDate)
			if err != nil {
				log.Fatalf("backtest: --start: %v", err)
			}
			end, err := time.Parse("2006-01-02", endDate)
			if err != nil {
				log.Fatalf("backtest: --end: %v", err)
			}

			st, err := store.Open(cfg.StoreDBPath)
			if err != nil {
				log.Fatalf("backtest: open store: %v", err)
			}
			defer st.Close()

			var derivSrc *derivatives.Source
			if cfg.DerivativesEnabled {
				derivSrc, err = derivatives.Connect(ctx, cfg.DerivativesDBURL)
				if err != nil {
					log.Printf("backtest: derivatives unavailable, proceeding without: %v", err)
					derivSrc = nil
				} else {
					defer derivSrc.Close()
				}
			}

			votes := &storeVoteSource{
				st:           st,
				derivSrc:     derivSrc,
				whaleVote:    whaleVote,
				whaleContext: derivatives.WhaleContext(whaleContext),
				weights: voteWeights{
					whale:            cfg.WeightWhale,
					utxo:             cfg.WeightUTXO,
					funding:          cfg.WeightFunding,
					oi:               cfg.WeightOI,
					sthLthCutoffDays: cfg.STHLTHCutoffDays,
				},
			}
			prices := &storePriceSeries{st: st}
			fcfg := fusion.Config{
				Samples:            cfg.FusionSampleCount,
				Seed:               cfg.FusionSeed,
				PerturbK:           cfg.FusionPerturbK,
				BimodalSaddleDepth: cfg.FusionBimodalSaddleDepth,
			}
			bcfg := backtest.Config{Start: start, End: end}

			var output any
			if optimize {
				grid := []backtest.WeightCombo{
					{"whale": 0.40, "utxo": 0.20, "funding": 0.25, "open_interest": 0.15},
					{"whale": 0.50, "utxo": 0.30, "funding": 0.10, "open_interest": 0.10},
					{"whale": 0.30, "utxo": 0.30, "funding": 0.20, "open_interest": 0.20},
				}
				res, err := backtest.GridSearch(ctx, bcfg, votes, prices, grid, fcfg)
				if err != nil {
					log.Fatalf("backtest: grid search: %v", err)
				}
				output = res
			} else {
				res, err := backtest.Run(ctx, bcfg, votes, prices, fcfg)
				if err != nil {
					log.Fatalf("backtest: %v", err)
				}
				output = res
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(output); err != nil {
				log.Fatalf("backtest: encode result: %v", err)
			}
		},
	}
	cmd.Flags().StringVar(&startDate, "start", "", "backtest window start date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&endDate, "end", "", "backtest window end date, YYYY-MM-DD (required)")
	cmd.Flags().BoolVar(&optimize, "optimize", false, "run a weight grid search instead of a single evaluation")
	cmd.Flags().Float64Var(&whaleVote, "whale-vote", 0, "constant whale-tracking component vote in [-1,1] across the replayed window")
	cmd.Flags().StringVar(&whaleContext, "whale-context", string(derivatives.WhaleNeutral), "whale-direction context for the open-interest adapter")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}
