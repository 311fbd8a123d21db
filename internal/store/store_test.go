package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertUTXOBatch_UnspentSupply(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	utxos := []models.UTXO{
		{Txid: "a", VoutIndex: 0, BTCValue: 1.5, CreationBlock: 100, CreationTime: time.Now(), CreationPriceUSD: 20000},
		{Txid: "b", VoutIndex: 0, BTCValue: 2.5, CreationBlock: 200, CreationTime: time.Now(), CreationPriceUSD: 30000},
	}
	if err := s.InsertUTXOBatch(ctx, utxos); err != nil {
		t.Fatalf("InsertUTXOBatch() error = %v", err)
	}

	btc, count, err := s.GetUnspentSupply(ctx, models.CohortFilter{})
	if err != nil {
		t.Fatalf("GetUnspentSupply() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if math.Abs(btc-4.0) > 1e-9 {
		t.Errorf("btc = %v, want 4.0", btc)
	}
}

func TestMarkSpent_ImmutableAfterSpend(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertUTXOBatch(ctx, []models.UTXO{
		{Txid: "a", VoutIndex: 0, BTCValue: 1.0, CreationBlock: 100, CreationTime: time.Now(), CreationPriceUSD: 10000},
	}); err != nil {
		t.Fatalf("InsertUTXOBatch() error = %v", err)
	}

	if err := s.MarkSpent(ctx, "a", 0, 150, time.Now(), 15000); err != nil {
		t.Fatalf("MarkSpent() first call error = %v", err)
	}

	err := s.MarkSpent(ctx, "a", 0, 160, time.Now(), 16000)
	if err == nil {
		t.Fatal("MarkSpent() second call: expected error, got nil")
	}
	if _, ok := err.(*models.StoreIntegrityError); !ok {
		t.Errorf("MarkSpent() second call error type = %T, want *models.StoreIntegrityError", err)
	}
}

func TestMarkSpent_SameSpendIsNoop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	spentAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := s.InsertUTXOBatch(ctx, []models.UTXO{
		{Txid: "a", VoutIndex: 0, BTCValue: 1.0, CreationBlock: 100, CreationTime: time.Now(), CreationPriceUSD: 10000},
	}); err != nil {
		t.Fatalf("InsertUTXOBatch() error = %v", err)
	}

	if err := s.MarkSpent(ctx, "a", 0, 150, spentAt, 15000); err != nil {
		t.Fatalf("MarkSpent() first call error = %v", err)
	}
	// Re-marking the exact same spend (same block, same price) is a replay
	// of the same block range, not a conflicting spend, and must succeed.
	if err := s.MarkSpent(ctx, "a", 0, 150, spentAt, 15000); err != nil {
		t.Fatalf("MarkSpent() replay of identical spend error = %v, want nil", err)
	}
}

func TestInsertUTXOBatch_DuplicateKeyIsIgnored(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := models.UTXO{Txid: "a", VoutIndex: 0, BTCValue: 1.0, CreationBlock: 100, CreationTime: time.Now(), CreationPriceUSD: 10000}
	if err := s.InsertUTXOBatch(ctx, []models.UTXO{u}); err != nil {
		t.Fatalf("InsertUTXOBatch() first call error = %v", err)
	}
	if err := s.MarkSpent(ctx, "a", 0, 150, time.Now(), 15000); err != nil {
		t.Fatalf("MarkSpent() error = %v", err)
	}

	// Re-inserting the same (txid, vout_index) — as a snapshot or block
	// replay would — must not disturb the row's recorded spend.
	if err := s.InsertUTXOBatch(ctx, []models.UTXO{u}); err != nil {
		t.Fatalf("InsertUTXOBatch() replay error = %v", err)
	}
	btc, count, err := s.GetUnspentSupply(ctx, models.CohortFilter{})
	if err != nil {
		t.Fatalf("GetUnspentSupply() error = %v", err)
	}
	if count != 0 || btc != 0 {
		t.Errorf("unspent = (btc=%v count=%d), want (0, 0): replayed insert must not unspend row", btc, count)
	}
}

func TestMarkSpent_UnknownUTXO(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.MarkSpent(ctx, "nonexistent", 0, 100, time.Now(), 10000)
	if err == nil {
		t.Fatal("expected error for unknown UTXO")
	}
	if _, ok := err.(*models.StoreIntegrityError); !ok {
		t.Errorf("error type = %T, want *models.StoreIntegrityError", err)
	}
}

func TestGetUnspentSupply_CohortZeroBoundIsRespected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertUTXOBatch(ctx, []models.UTXO{
		{Txid: "a", VoutIndex: 0, BTCValue: 1.0, CreationBlock: 0, CreationTime: time.Now(), CreationPriceUSD: 100},
		{Txid: "b", VoutIndex: 0, BTCValue: 2.0, CreationBlock: 50, CreationTime: time.Now(), CreationPriceUSD: 200},
	}); err != nil {
		t.Fatalf("InsertUTXOBatch() error = %v", err)
	}

	// An explicit MaxCreationBlock of 0 must only match the genesis-height
	// row, not silently behave as "no upper bound" the way a zero-sentinel
	// would.
	btc, count, err := s.GetUnspentSupply(ctx, models.CohortMax(0))
	if err != nil {
		t.Fatalf("GetUnspentSupply() error = %v", err)
	}
	if count != 1 || math.Abs(btc-1.0) > 1e-9 {
		t.Errorf("GetUnspentSupply(CohortMax(0)) = (btc=%v count=%d), want (1.0, 1)", btc, count)
	}
}

func TestGetDailyPrice_MissingIsTyped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetDailyPrice(ctx, "2024-01-01")
	if err == nil {
		t.Fatal("expected MissingPriceData error")
	}
	missing, ok := err.(*models.MissingPriceData)
	if !ok {
		t.Fatalf("error type = %T, want *models.MissingPriceData", err)
	}
	if missing.Date != "2024-01-01" {
		t.Errorf("Date = %s, want 2024-01-01", missing.Date)
	}
}

func TestUpsertDailyPrice_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertDailyPrice(ctx, "2024-01-01", 42000); err != nil {
		t.Fatalf("UpsertDailyPrice() error = %v", err)
	}
	got, err := s.GetDailyPrice(ctx, "2024-01-01")
	if err != nil {
		t.Fatalf("GetDailyPrice() error = %v", err)
	}
	if got != 42000 {
		t.Errorf("price = %v, want 42000", got)
	}

	// Overwrite.
	if err := s.UpsertDailyPrice(ctx, "2024-01-01", 43000); err != nil {
		t.Fatalf("UpsertDailyPrice() overwrite error = %v", err)
	}
	got, err = s.GetDailyPrice(ctx, "2024-01-01")
	if err != nil {
		t.Fatalf("GetDailyPrice() error = %v", err)
	}
	if got != 43000 {
		t.Errorf("price after overwrite = %v, want 43000", got)
	}
}

func TestGetBlockDate_MissingIsTyped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetBlockDate(ctx, 999)
	if _, ok := err.(*models.MissingHeightData); !ok {
		t.Fatalf("error type = %T, want *models.MissingHeightData", err)
	}
}

func TestGroupUnspentByPriceBucket_ClosesOver100Pct(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertUTXOBatch(ctx, []models.UTXO{
		{Txid: "a", VoutIndex: 0, BTCValue: 1.0, CreationBlock: 100, CreationTime: time.Now(), CreationPriceUSD: 1500},
		{Txid: "b", VoutIndex: 0, BTCValue: 2.0, CreationBlock: 100, CreationTime: time.Now(), CreationPriceUSD: 2500},
		{Txid: "c", VoutIndex: 0, BTCValue: 3.0, CreationBlock: 100, CreationTime: time.Now(), CreationPriceUSD: 2600},
	}); err != nil {
		t.Fatalf("InsertUTXOBatch() error = %v", err)
	}

	buckets, err := s.GroupUnspentByPriceBucket(ctx, 1000, models.CohortFilter{})
	if err != nil {
		t.Fatalf("GroupUnspentByPriceBucket() error = %v", err)
	}
	var totalBTC float64
	for _, b := range buckets {
		totalBTC += b.BTC
	}
	if math.Abs(totalBTC-6.0) > 1e-9 {
		t.Errorf("total bucketed BTC = %v, want 6.0", totalBTC)
	}
	// Ordered by price descending.
	for i := 1; i < len(buckets); i++ {
		if buckets[i].PriceLow > buckets[i-1].PriceLow {
			t.Errorf("buckets not ordered descending at index %d", i)
		}
	}
}

func TestGetSpentInWindow_Iterates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Now().Add(-48 * time.Hour)
	if err := s.InsertUTXOBatch(ctx, []models.UTXO{
		{Txid: "a", VoutIndex: 0, BTCValue: 1.0, CreationBlock: 100, CreationTime: created, CreationPriceUSD: 10000},
		{Txid: "b", VoutIndex: 0, BTCValue: 2.0, CreationBlock: 100, CreationTime: created, CreationPriceUSD: 10000},
	}); err != nil {
		t.Fatalf("InsertUTXOBatch() error = %v", err)
	}
	if err := s.MarkSpent(ctx, "a", 0, 150, time.Now(), 20000); err != nil {
		t.Fatalf("MarkSpent() error = %v", err)
	}

	it, err := s.GetSpentInWindow(ctx, 100, 200)
	if err != nil {
		t.Fatalf("GetSpentInWindow() error = %v", err)
	}
	defer it.Close()

	count := 0
	for it.Next() {
		var rec models.SpentRecord
		if err := it.Scan(&rec); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if rec.AgeDays <= 0 {
			t.Errorf("AgeDays = %v, want > 0", rec.AgeDays)
		}
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator Err() = %v", err)
	}
	if count != 1 {
		t.Errorf("iterated %d spent records, want 1", count)
	}
}
