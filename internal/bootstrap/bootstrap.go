// Package bootstrap implements the two-tier store-population pipeline
// (C2): a Tier-1 bulk UTXO-set snapshot load, and a Tier-2 incremental
// spend replay. Both tiers consume caller-supplied interfaces — C2 never
// opens an RPC connection itself, the node and its wire protocol are
// excluded external collaborators.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/onchain-fusion/internal/priceindex"
	"github.com/rawblock/onchain-fusion/internal/store"
	"github.com/rawblock/onchain-fusion/pkg/models"
)

// ChainstateEntry is one currently-unspent output as described by a
// chainstate dump. ScriptType carries the dump's scriptPubKey type
// classification (e.g. "nulldata" for OP_RETURN) when the source provides
// it; a real `bitcoin-cli dumptxoutset` export already excludes
// provably-unspendable outputs from the UTXO set, but the field lets a
// less careful snapshot source be filtered the same way Tier-2 filters
// them at ingestion.
type ChainstateEntry struct {
	Txid          string
	VoutIndex     uint32
	BTCValue      float64
	CreationBlock int64
	ScriptType    string
}

// excludeUnspendable reports whether e is a zero-value or
// provably-unspendable (OP_RETURN / "nulldata") output — both kinds are
// excluded from the lifecycle store's UTXO records.
func excludeUnspendable(e ChainstateEntry) bool {
	return e.BTCValue == 0 || e.ScriptType == "nulldata"
}

// ChainstateSnapshot is a single-pass sequence of chainstate entries —
// the Tier-1 input. Concrete sources (a flat file, a live node dump, a
// test fixture) are the caller's concern.
type ChainstateSnapshot interface {
	Next() bool
	Entry() ChainstateEntry
	Err() error
}

// Progress reports Tier-1/Tier-2 advancement at a fixed cadence: after
// every Tier-1 batch of tier1BatchSize rows and after every Tier-2 block.
// Tier-2 reports leave TargetHeight at zero. A report is dropped when the
// progress channel is full.
type Progress struct {
	CurrentHeight int64
	TargetHeight  int64
	RowsWritten   int64
	Elapsed       time.Duration
}

const tier1BatchSize = 1000

// Tier1 performs the bulk UTXO-set snapshot load: it populates the
// height->date mapping and the daily-price series for every height the
// dump touches, then bulk-inserts the UTXO rows joined against those
// prices. progress may be nil.
func Tier1(ctx context.Context, snapshot ChainstateSnapshot, indexer *priceindex.Indexer, st *store.Store, progress chan<- Progress) error {
	start := time.Now()

	var entries []ChainstateEntry
	heightsSeen := make(map[int64]struct{})
	for snapshot.Next() {
		e := snapshot.Entry()
		if excludeUnspendable(e) {
			continue
		}
		entries = append(entries, e)
		heightsSeen[e.CreationBlock] = struct{}{}
	}
	if err := snapshot.Err(); err != nil {
		return fmt.Errorf("bootstrap tier1: read snapshot: %w", err)
	}

	for h := range heightsSeen {
		if err := indexer.RefreshHeight(ctx, h); err != nil {
			return fmt.Errorf("bootstrap tier1: refresh height %d: %w", h, err)
		}
	}

	datesSeen := make(map[string]struct{})
	heightDate := make(map[int64]string, len(heightsSeen))
	for h := range heightsSeen {
		ts, err := st.GetBlockDate(ctx, h)
		if err != nil {
			return fmt.Errorf("bootstrap tier1: get block date %d: %w", h, err)
		}
		d := dateString(ts)
		heightDate[h] = d
		datesSeen[d] = struct{}{}
	}
	for d := range datesSeen {
		if err := indexer.RefreshPrice(ctx, d); err != nil {
			return fmt.Errorf("bootstrap tier1: refresh price %s: %w", d, err)
		}
	}

	priceForDate := make(map[string]float64, len(datesSeen))
	for d := range datesSeen {
		p, err := st.GetDailyPrice(ctx, d)
		if err != nil {
			return fmt.Errorf("bootstrap tier1: get daily price %s: %w", d, err)
		}
		priceForDate[d] = p
	}

	var rowsWritten int64
	var targetHeight int64
	for h := range heightsSeen {
		if h > targetHeight {
			targetHeight = h
		}
	}

	batch := make([]models.UTXO, 0, tier1BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := st.InsertUTXOBatch(ctx, batch); err != nil {
			return fmt.Errorf("bootstrap tier1: insert batch: %w", err)
		}
		rowsWritten += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for _, e := range entries {
		date := heightDate[e.CreationBlock]
		price := priceForDate[date]
		ts, err := st.GetBlockDate(ctx, e.CreationBlock)
		if err != nil {
			return fmt.Errorf("bootstrap tier1: creation time for height %d: %w", e.CreationBlock, err)
		}
		batch = append(batch, models.UTXO{
			Txid:             e.Txid,
			VoutIndex:        e.VoutIndex,
			BTCValue:         e.BTCValue,
			CreationBlock:    e.CreationBlock,
			CreationTime:     ts,
			CreationPriceUSD: price,
		})
		if len(batch) >= tier1BatchSize {
			if err := flush(); err != nil {
				return err
			}
			reportProgress(progress, Progress{CurrentHeight: e.CreationBlock, TargetHeight: targetHeight, RowsWritten: rowsWritten, Elapsed: time.Since(start)})
		}
	}
	if err := flush(); err != nil {
		return err
	}
	reportProgress(progress, Progress{CurrentHeight: targetHeight, TargetHeight: targetHeight, RowsWritten: rowsWritten, Elapsed: time.Since(start)})
	return nil
}

func reportProgress(ch chan<- Progress, p Progress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}

func dateString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
