package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"

	"github.com/rawblock/onchain-fusion/internal/priceindex"
	"github.com/rawblock/onchain-fusion/internal/store"
	"github.com/rawblock/onchain-fusion/pkg/models"
)

type fakeSnapshot struct {
	entries []ChainstateEntry
	idx     int
}

func (f *fakeSnapshot) Next() bool {
	if f.idx >= len(f.entries) {
		return false
	}
	f.idx++
	return true
}
func (f *fakeSnapshot) Entry() ChainstateEntry { return f.entries[f.idx-1] }
func (f *fakeSnapshot) Err() error             { return nil }

type fakePriceSource struct{}

func (fakePriceSource) FetchPrice(ctx context.Context, date string) (float64, error) {
	return 30000, nil
}

type fakeHeightSource struct{ base time.Time }

func (f fakeHeightSource) FetchBlockTime(ctx context.Context, height int64) (time.Time, error) {
	return f.base.Add(time.Duration(height) * time.Minute), nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTier1_BulkLoadsAndJoinsPrice(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	idx := priceindex.New(fakePriceSource{}, fakeHeightSource{base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, st)

	snapshot := &fakeSnapshot{entries: []ChainstateEntry{
		{Txid: "a", VoutIndex: 0, BTCValue: 1.0, CreationBlock: 100},
		{Txid: "b", VoutIndex: 0, BTCValue: 2.5, CreationBlock: 100},
		{Txid: "c", VoutIndex: 1, BTCValue: 0.1, CreationBlock: 200},
	}}

	if err := Tier1(ctx, snapshot, idx, st, nil); err != nil {
		t.Fatalf("Tier1() error = %v", err)
	}

	btc, count, err := st.GetUnspentSupply(ctx, models.CohortFilter{})
	if err != nil {
		t.Fatalf("GetUnspentSupply() error = %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if btc < 3.59 || btc > 3.61 {
		t.Errorf("btc = %v, want ~3.6", btc)
	}
}

type fakeBlockStream struct {
	blocks []Block
	idx    int
}

func (f *fakeBlockStream) Next() bool {
	if f.idx >= len(f.blocks) {
		return false
	}
	f.idx++
	return true
}
func (f *fakeBlockStream) Block() Block { return f.blocks[f.idx-1] }
func (f *fakeBlockStream) Err() error   { return nil }

// testTxid1 and testTxid2 are well-formed 64-hex-digit txids: applyBlock
// rejects any txid that chainhash cannot parse.
const (
	testTxid1 = "1111111111111111111111111111111111111111111111111111111111111111"
	testTxid2 = "2222222222222222222222222222222222222222222222222222222222222222"
)

func TestTier2_InsertsOutputsAndMarksSpends(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	idx := priceindex.New(fakePriceSource{}, fakeHeightSource{base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, st)

	blockA := Block{
		Height:    100,
		Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Transactions: []btcjson.TxRawResult{
			{
				Txid: testTxid1,
				Vin:  []btcjson.Vin{{Coinbase: "00"}},
				Vout: []btcjson.Vout{{Value: 5.0, N: 0}},
			},
		},
	}
	blockB := Block{
		Height:    101,
		Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Transactions: []btcjson.TxRawResult{
			{
				Txid: testTxid2,
				Vin:  []btcjson.Vin{{Txid: testTxid1, Vout: 0}},
				Vout: []btcjson.Vout{{Value: 4.9, N: 0}},
			},
		},
	}
	stream := &fakeBlockStream{blocks: []Block{blockA, blockB}}

	if err := Tier2(ctx, stream, idx, st, nil, nil); err != nil {
		t.Fatalf("Tier2() error = %v", err)
	}

	btc, count, err := st.GetUnspentSupply(ctx, models.CohortFilter{})
	if err != nil {
		t.Fatalf("GetUnspentSupply() error = %v", err)
	}
	if count != 1 {
		t.Errorf("unspent count = %d, want 1 (tx1's output spent by tx2)", count)
	}
	if btc < 4.89 || btc > 4.91 {
		t.Errorf("unspent btc = %v, want ~4.9", btc)
	}
}

func TestTier2_ReplayIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	idx := priceindex.New(fakePriceSource{}, fakeHeightSource{base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, st)

	blocks := []Block{
		{
			Height:    100,
			Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Transactions: []btcjson.TxRawResult{
				{
					Txid: testTxid1,
					Vin:  []btcjson.Vin{{Coinbase: "00"}},
					Vout: []btcjson.Vout{{Value: 5.0, N: 0}},
				},
			},
		},
		{
			Height:    101,
			Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Transactions: []btcjson.TxRawResult{
				{
					Txid: testTxid2,
					Vin:  []btcjson.Vin{{Txid: testTxid1, Vout: 0}},
					Vout: []btcjson.Vout{{Value: 4.9, N: 0}},
				},
			},
		},
	}

	if err := Tier2(ctx, &fakeBlockStream{blocks: blocks}, idx, st, nil, nil); err != nil {
		t.Fatalf("first Tier2() error = %v", err)
	}
	btcBefore, countBefore, err := st.GetUnspentSupply(ctx, models.CohortFilter{})
	if err != nil {
		t.Fatalf("GetUnspentSupply() error = %v", err)
	}

	// Replaying the exact same block range must leave the store untouched:
	// the already-created output is skipped rather than rejected, and the
	// already-recorded spend is a no-op rather than an immutability error.
	if err := Tier2(ctx, &fakeBlockStream{blocks: blocks}, idx, st, nil, nil); err != nil {
		t.Fatalf("replayed Tier2() error = %v", err)
	}
	btcAfter, countAfter, err := st.GetUnspentSupply(ctx, models.CohortFilter{})
	if err != nil {
		t.Fatalf("GetUnspentSupply() error = %v", err)
	}
	if countAfter != countBefore || btcAfter != btcBefore {
		t.Errorf("replay changed unspent set: before (btc=%v count=%d), after (btc=%v count=%d)", btcBefore, countBefore, btcAfter, countAfter)
	}
}

// TestTier2_MidBlockFailureRollsBackWholeBlock constructs a block whose
// second transaction has an unparseable txid, forcing applyBlock to fail
// after its first transaction's output would otherwise have been staged.
// Nothing from the block — including that first, individually-valid
// output — may survive: the block is the commit boundary, not the
// transaction.
func TestTier2_MidBlockFailureRollsBackWholeBlock(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	idx := priceindex.New(fakePriceSource{}, fakeHeightSource{base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, st)

	block := Block{
		Height:    100,
		Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Transactions: []btcjson.TxRawResult{
			{
				Txid: testTxid1,
				Vin:  []btcjson.Vin{{Coinbase: "00"}},
				Vout: []btcjson.Vout{{Value: 5.0, N: 0}},
			},
			{
				Txid: "not-a-valid-txid",
				Vin:  []btcjson.Vin{{Coinbase: "00"}},
				Vout: []btcjson.Vout{{Value: 1.0, N: 0}},
			},
		},
	}
	stream := &fakeBlockStream{blocks: []Block{block}}

	if err := Tier2(ctx, stream, idx, st, nil, nil); err == nil {
		t.Fatal("Tier2() with an invalid txid mid-block succeeded, want error")
	}

	_, count, err := st.GetUnspentSupply(ctx, models.CohortFilter{})
	if err != nil {
		t.Fatalf("GetUnspentSupply() error = %v", err)
	}
	if count != 0 {
		t.Errorf("unspent count = %d, want 0: tx1's output must not survive a failed later transaction in the same block", count)
	}
}

func TestTier2_RejectsOutOfOrderHeights(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	idx := priceindex.New(fakePriceSource{}, fakeHeightSource{base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, st)

	stream := &fakeBlockStream{blocks: []Block{
		{Height: 200, Timestamp: time.Now(), Transactions: nil},
		{Height: 100, Timestamp: time.Now(), Transactions: nil},
	}}
	if err := Tier2(ctx, stream, idx, st, nil, nil); err == nil {
		t.Fatal("Tier2() with out-of-order heights succeeded, want error")
	}
}
