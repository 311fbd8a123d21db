package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/rawblock/onchain-fusion/internal/metrics"
	"github.com/rawblock/onchain-fusion/internal/store"
	"github.com/rawblock/onchain-fusion/pkg/models"
)

func newMetricCmd() *cobra.Command {
	var bucketSizeUSD float64
	var windowDays int
	var currentPriceUSD float64
	var height int64

	cmd := &cobra.Command{
		Use:       "metric [urpd|supply_profit_loss|mvrv|reserve_risk|sell_side_risk|cdd_vdd|pl_ratio|nupl]",
		Short:     "compute and print one on-chain metric as JSON",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"urpd", "supply_profit_loss", "mvrv", "reserve_risk", "sell_side_risk", "cdd_vdd", "pl_ratio", "nupl"},
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			ctx := context.Background()

			st, err := store.Open(cfg.StoreDBPath)
			if err != nil {
				log.Printf("metric: open store: %v", err)
				os.Exit(exitMetricStoreError)
			}
			defer st.Close()

			if height == 0 {
				log.Printf("metric: --height is required (the store has no notion of chain tip on its own)")
				os.Exit(exitMetricStoreError)
			}
			fromBlock := height - int64(windowDays)*144
			if fromBlock < 0 {
				fromBlock = 0
			}

			result, err := runMetric(ctx, st, args[0], bucketSizeUSD, currentPriceUSD, windowDays, cfg.STHLTHCutoffDays, fromBlock, height)
			if code := metricExitCode(err); code != exitOK {
				log.Printf("metric %s: %v", args[0], err)
				os.Exit(code)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				log.Printf("metric: encode result: %v", err)
				os.Exit(exitMetricStoreError)
			}
			os.Exit(exitOK)
		},
	}
	cmd.Flags().Float64Var(&bucketSizeUSD, "bucket-size", 5000, "URPD bucket width in USD")
	cmd.Flags().IntVar(&windowDays, "window-days", 155, "lookback window in days for windowed metrics")
	cmd.Flags().Float64Var(&currentPriceUSD, "current-price", 0, "current USD price (required for most metrics)")
	cmd.Flags().Int64Var(&height, "height", 0, "block height to evaluate the metric as of (required)")
	return cmd
}

func runMetric(ctx context.Context, st *store.Store, name string, bucketSizeUSD, currentPriceUSD float64, windowDays, sthLthCutoffDays int, fromBlock, height int64) (any, error) {
	switch name {
	case "urpd":
		return metrics.URPD(ctx, st, bucketSizeUSD, currentPriceUSD, height, models.CohortFilter{})
	case "supply_profit_loss":
		return metrics.SupplyInProfitLoss(ctx, st, currentPriceUSD, height, sthLthCutoffDays)
	case "mvrv":
		return metrics.MVRV(ctx, st, currentPriceUSD, height, sthLthCutoffDays, nil)
	case "reserve_risk":
		return metrics.ReserveRisk(ctx, st, currentPriceUSD, height)
	case "sell_side_risk":
		return metrics.SellSideRisk(ctx, st, currentPriceUSD, fromBlock, height, windowDays, height)
	case "cdd_vdd":
		return metrics.CDDVDD(ctx, st, fromBlock, height, windowDays, height, nil)
	case "pl_ratio":
		return metrics.PLRatio(ctx, st, fromBlock, height, windowDays, height)
	case "nupl":
		return metrics.NUPL(ctx, st, currentPriceUSD, height)
	default:
		return nil, fmt.Errorf("metric: unknown metric %q", name)
	}
}

func metricExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	return exitMetricStoreError
}
