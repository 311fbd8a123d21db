package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/rawblock/onchain-fusion/internal/bootstrap"
	"github.com/rawblock/onchain-fusion/internal/priceindex"
	"github.com/rawblock/onchain-fusion/internal/store"
	"github.com/rawblock/onchain-fusion/pkg/models"
)

const (
	exitOK                 = 0
	exitBootstrapNoPrice   = 10
	exitBootstrapNoHeight  = 11
	exitBootstrapIntegrity = 12
	// 20 is deliberately unused: a metric's lookback-window shortfall
	// degrades in-band as a Zone/Confidence field on the result (spec
	// §4.4), never as an error, so there is no "insufficient data" exit
	// condition to distinguish from a genuine store failure.
	exitMetricStoreError = 21
)

func newBootstrapCmd() *cobra.Command {
	var fromSnapshot string
	var syncFromHeight int64

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "populate the lifecycle store from a chainstate snapshot and/or live sync",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			ctx := context.Background()

			st, err := store.Open(cfg.StoreDBPath)
			if err != nil {
				log.Printf("bootstrap: open store: %v", err)
				os.Exit(exitBootstrapIntegrity)
			}
			defer st.Close()

			rpc, err := connectRPC(cfg)
			if err != nil {
				log.Printf("bootstrap: %v", err)
				os.Exit(exitBootstrapNoHeight)
			}
			defer rpc.Shutdown()

			idx := priceindex.New(
				priceindex.NewHTTPPriceSource(cfg.PriceAPIBaseURL),
				priceindex.NewRPCHeightSource(rpc),
				st,
			)

			if fromSnapshot != "" {
				f, err := os.Open(fromSnapshot)
				if err != nil {
					log.Printf("bootstrap: open snapshot: %v", err)
					os.Exit(exitBootstrapIntegrity)
				}
				snapshot := bootstrap.NewJSONLSnapshot(f)
				err = bootstrap.Tier1(ctx, snapshot, idx, st, progressPrinter())
				f.Close()
				if code := bootstrapExitCode(err); code != exitOK {
					log.Printf("bootstrap tier1: %v", err)
					os.Exit(code)
				}
			}

			if syncFromHeight >= 0 {
				tip, err := rpc.GetBlockCount()
				if err != nil {
					log.Printf("bootstrap: get chain tip: %v", err)
					os.Exit(exitBootstrapNoHeight)
				}
				stream := bootstrap.NewRPCBlockStream(rpc, syncFromHeight, tip)
				err = bootstrap.Tier2(ctx, stream, idx, st, progressPrinter(), gapPrinter())
				if code := bootstrapExitCode(err); code != exitOK {
					log.Printf("bootstrap tier2: %v", err)
					os.Exit(code)
				}
			}

			fmt.Println("bootstrap complete")
			os.Exit(exitOK)
		},
	}
	cmd.Flags().StringVar(&fromSnapshot, "from-snapshot", "", "path to a JSONL chainstate snapshot for the Tier-1 bulk load")
	cmd.Flags().Int64Var(&syncFromHeight, "sync-from-height", -1, "run Tier-2 incremental sync from this height to the chain tip (-1 skips Tier-2)")
	return cmd
}

func bootstrapExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var priceErr *priceindex.PriceFetchError
	var missingPrice *models.MissingPriceData
	if errors.As(err, &priceErr) || errors.As(err, &missingPrice) {
		return exitBootstrapNoPrice
	}
	var missingHeight *models.MissingHeightData
	if errors.As(err, &missingHeight) {
		return exitBootstrapNoHeight
	}
	return exitBootstrapIntegrity
}

func progressPrinter() chan bootstrap.Progress {
	ch := make(chan bootstrap.Progress, 16)
	go func() {
		for p := range ch {
			log.Printf("bootstrap progress: height=%d target=%d rows=%d elapsed=%s", p.CurrentHeight, p.TargetHeight, p.RowsWritten, p.Elapsed)
		}
	}()
	return ch
}

func gapPrinter() chan bootstrap.GapEvent {
	ch := make(chan bootstrap.GapEvent, 16)
	go func() {
		for g := range ch {
			log.Printf("bootstrap gap: height=%d txid=%s vout=%d synthesized=%v", g.Height, g.Txid, g.VoutIndex, g.Synthesized)
		}
	}()
	return ch
}
