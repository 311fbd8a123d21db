// Command engine is the single CLI binary for the on-chain + derivatives
// signal fusion core: bootstrap populates the lifecycle store, metric prints
// one on-chain metric, fuse runs the Monte-Carlo fusion engine, and
// backtest replays it across a historical window. Built with cobra
// (grounded on the retrieval pack's multi-subcommand financial CLI rather
// than the teacher's own hand-rolled flag.Parse, since the teacher is a
// long-running server with nothing to subcommand).
package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/rawblock/onchain-fusion/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "engine",
		Short: "on-chain and derivatives signal fusion engine",
	}
	root.AddCommand(newBootstrapCmd())
	root.AddCommand(newMetricCmd())
	root.AddCommand(newFuseCmd())
	root.AddCommand(newBacktestCmd())
	return root
}

// loadConfig is the shared startup path every subcommand uses: load and
// validate env, fatal on misconfiguration before touching any collaborator.
func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}
