package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/rawblock/onchain-fusion/internal/priceindex"
	"github.com/rawblock/onchain-fusion/internal/store"
	"github.com/rawblock/onchain-fusion/pkg/models"
)

// Block is one Tier-2 stream element: a height, its timestamp, and the
// verbose transactions it contains, reusing btcjson's wire shape rather
// than a bespoke one — the same decoding target the teacher already uses
// for live RPC responses.
type Block struct {
	Height       int64
	Timestamp    time.Time
	Transactions []btcjson.TxRawResult
}

// BlockStream is a single-pass, strictly height-ordered sequence of
// blocks — the Tier-2 input.
type BlockStream interface {
	Next() bool
	Block() Block
	Err() error
}

// GapEvent records a prevout that Tier-2 could not resolve against the
// store. Tier2 always reports it with Synthesized false: no row is
// synthesized for the missing prevout, the input is left unmarked, and the
// rest of the block still commits (the block is not skipped).
type GapEvent struct {
	Height     int64
	Txid       string
	VoutIndex  uint32
	Synthesized bool
}

// Tier2 replays a BlockStream into the store: one commit boundary per
// block height, in strict height order. An input whose prevout can't be
// resolved against the store is reported as a gap rather than aborting
// the block — the rest of the block still commits.
func Tier2(ctx context.Context, stream BlockStream, indexer *priceindex.Indexer, st *store.Store, progress chan<- Progress, gaps chan<- GapEvent) error {
	start := time.Now()
	var rowsWritten int64
	var lastHeight int64

	for stream.Next() {
		b := stream.Block()
		if b.Height <= lastHeight && lastHeight != 0 {
			return fmt.Errorf("bootstrap tier2: out-of-order block height %d after %d", b.Height, lastHeight)
		}
		lastHeight = b.Height

		if err := indexer.RefreshHeight(ctx, b.Height); err != nil {
			return fmt.Errorf("bootstrap tier2: refresh height %d: %w", b.Height, err)
		}
		date := dateString(b.Timestamp)
		if err := indexer.RefreshPrice(ctx, date); err != nil {
			return fmt.Errorf("bootstrap tier2: refresh price %s: %w", date, err)
		}
		price, err := st.GetDailyPrice(ctx, date)
		if err != nil {
			return fmt.Errorf("bootstrap tier2: price for %s: %w", date, err)
		}

		n, err := applyBlock(ctx, st, b, price, gaps)
		if err != nil {
			return fmt.Errorf("bootstrap tier2: apply block %d: %w", b.Height, err)
		}
		rowsWritten += n

		reportProgress(progress, Progress{CurrentHeight: b.Height, RowsWritten: rowsWritten, Elapsed: time.Since(start)})
	}
	return stream.Err()
}

// isUnspendableVout reports whether vout is a zero-value or
// provably-unspendable (OP_RETURN / "nulldata") output, excluded from the
// lifecycle store the same way Tier-1's excludeUnspendable excludes them
// from a chainstate dump.
func isUnspendableVout(vout btcjson.Vout) bool {
	return vout.Value == 0 || vout.ScriptPubKey.Type == "nulldata"
}

// applyBlock collects every new spendable output and every resolvable
// input spend for one block, then commits them through a single
// store.Store.ApplyBlock transaction — the block boundary is the
// transaction boundary, so a mid-block failure rolls back the whole
// block rather than leaving an earlier transaction's output or spend on
// file with none of the rest.
//
// btcjson's verbose Vin carries only the prevout's txid/index, not its
// value or creation height, so there is no local data to synthesize a
// gap row from here — an unresolved prevout is reported as a gap and
// that one input is left unmarked, without aborting the block's
// transaction.
func applyBlock(ctx context.Context, st *store.Store, b Block, priceUSD float64, gaps chan<- GapEvent) (int64, error) {
	var outputs []models.UTXO
	var spends []store.SpendInput

	for _, tx := range b.Transactions {
		if _, err := chainhash.NewHashFromStr(tx.Txid); err != nil {
			return 0, fmt.Errorf("invalid txid %q: %w", tx.Txid, err)
		}

		for _, vout := range tx.Vout {
			if isUnspendableVout(vout) {
				continue
			}
			amt, err := btcutil.NewAmount(vout.Value)
			if err != nil {
				return 0, fmt.Errorf("tx %s vout %d: %w", tx.Txid, vout.N, err)
			}
			outputs = append(outputs, models.UTXO{
				Txid:             tx.Txid,
				VoutIndex:        vout.N,
				BTCValue:         amt.ToBTC(),
				CreationBlock:    b.Height,
				CreationTime:     b.Timestamp,
				CreationPriceUSD: priceUSD,
			})
		}

		for _, vin := range tx.Vin {
			if vin.Coinbase != "" {
				continue
			}
			spends = append(spends, store.SpendInput{
				Txid:          vin.Txid,
				VoutIndex:     vin.Vout,
				SpentBlock:    b.Height,
				SpentTime:     b.Timestamp,
				SpentPriceUSD: priceUSD,
			})
		}
	}

	unresolved, err := st.ApplyBlock(ctx, outputs, spends)
	if err != nil {
		return 0, fmt.Errorf("apply block %d: %w", b.Height, err)
	}
	for _, sp := range unresolved {
		reportGap(gaps, GapEvent{Height: b.Height, Txid: sp.Txid, VoutIndex: sp.VoutIndex, Synthesized: false})
	}
	return int64(len(outputs)), nil
}

func reportGap(ch chan<- GapEvent, g GapEvent) {
	if ch == nil {
		return
	}
	select {
	case ch <- g:
	default:
	}
}
