package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rawblock/onchain-fusion/internal/derivatives"
	"github.com/rawblock/onchain-fusion/internal/fusion"
	"github.com/rawblock/onchain-fusion/internal/signals"
	"github.com/rawblock/onchain-fusion/internal/store"
	"github.com/rawblock/onchain-fusion/pkg/models"
)

func newFuseCmd() *cobra.Command {
	var seed int64
	var height int64
	var currentPriceUSD float64
	var whaleVote float64
	var whaleContext string

	cmd := &cobra.Command{
		Use:   "fuse",
		Short: "run the Monte-Carlo fusion engine and print the recommendation as JSON",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			ctx := context.Background()

			st, err := store.Open(cfg.StoreDBPath)
			if err != nil {
				log.Fatalf("fuse: open store: %v", err)
			}
			defer st.Close()

			votes := make([]models.SignalVote, 0, 4)

			whale := whaleVote
			whaleSV, err := models.NewSignalVote("whale", &whale, 0.80, cfg.WeightWhale)
			if err != nil {
				log.Fatalf("fuse: whale vote: %v", err)
			}
			votes = append(votes, whaleSV)

			utxoSV, err := signals.UTXOVote(ctx, st, signals.UTXOVoteInputs{
				CurrentPriceUSD:  currentPriceUSD,
				Height:           height,
				STHLTHCutoffDays: cfg.STHLTHCutoffDays,
			}, cfg.WeightUTXO)
			if err != nil {
				log.Fatalf("fuse: utxo vote: %v", err)
			}
			votes = append(votes, utxoSV)

			if cfg.DerivativesEnabled {
				src, err := derivatives.Connect(ctx, cfg.DerivativesDBURL)
				if err != nil {
					log.Printf("fuse: derivatives unavailable, falling back to None votes: %v", err)
				} else {
					defer src.Close()
					now := time.Now().UTC()
					fundingAdapter := derivatives.NewFundingAdapter(src, "BTC-PERP", cfg.WeightFunding)
					votes = append(votes, fundingAdapter.Vote(ctx, now))

					oiAdapter := derivatives.NewOpenInterestAdapter(src, "BTC-PERP", cfg.WeightOI, time.Hour)
					votes = append(votes, oiAdapter.Vote(ctx, now, derivatives.WhaleContext(whaleContext)))
				}
			}

			fcfg := fusion.Config{
				Samples:            cfg.FusionSampleCount,
				Seed:               seed,
				PerturbK:           cfg.FusionPerturbK,
				BimodalSaddleDepth: cfg.FusionBimodalSaddleDepth,
			}
			result, err := fusion.Fuse(votes, fcfg, time.Now().UTC())
			if err != nil {
				log.Fatalf("fuse: %v", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				log.Fatalf("fuse: encode result: %v", err)
			}
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 42, "Monte-Carlo RNG seed")
	cmd.Flags().Int64Var(&height, "height", 0, "block height to evaluate the utxo component as of (required)")
	cmd.Flags().Float64Var(&currentPriceUSD, "current-price", 0, "current USD price (required)")
	cmd.Flags().Float64Var(&whaleVote, "whale-vote", 0, "whale-tracking component vote in [-1,1] (large-holder flow analysis is an excluded external collaborator; supply its output here)")
	cmd.Flags().StringVar(&whaleContext, "whale-context", string(derivatives.WhaleNeutral), "whale-direction context for the open-interest adapter: ACCUMULATION, DISTRIBUTION, or NEUTRAL")
	cmd.MarkFlagRequired("height")
	cmd.MarkFlagRequired("current-price")
	return cmd
}
