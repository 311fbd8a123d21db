package main

import (
	"fmt"

	"github.com/btcsuite/btcd/rpcclient"

	"github.com/rawblock/onchain-fusion/internal/config"
)

// connectRPC opens the Bitcoin Core RPC connection used to back Tier-2
// block streaming and the block-height source, in the same
// rpcclient.ConnConfig shape as the teacher's bitcoin.NewClient.
func connectRPC(cfg config.Config) (*rpcclient.Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.BTCRPCHost,
		User:         cfg.BTCRPCUser,
		Pass:         cfg.BTCRPCPass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("connect bitcoin rpc: %w", err)
	}
	if _, err := client.GetBlockCount(); err != nil {
		client.Shutdown()
		return nil, fmt.Errorf("bitcoin rpc unreachable: %w", err)
	}
	return client, nil
}
