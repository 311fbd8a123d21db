package priceindex

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
)

// RPCHeightSource resolves a block height's timestamp from a Bitcoin Core
// node, grounded on the GetBlockHash/GetBlockVerbose pair the teacher's
// block scanner uses for the same walk.
type RPCHeightSource struct {
	rpc *rpcclient.Client
}

func NewRPCHeightSource(rpc *rpcclient.Client) *RPCHeightSource {
	return &RPCHeightSource{rpc: rpc}
}

func (s *RPCHeightSource) FetchBlockTime(ctx context.Context, height int64) (time.Time, error) {
	hash, err := s.rpc.GetBlockHash(height)
	if err != nil {
		return time.Time{}, fmt.Errorf("rpc height source: get block hash: %w", err)
	}
	header, err := s.rpc.GetBlockHeaderVerbose(hash)
	if err != nil {
		return time.Time{}, fmt.Errorf("rpc height source: get block header: %w", err)
	}
	return time.Unix(header.Time, 0).UTC(), nil
}
