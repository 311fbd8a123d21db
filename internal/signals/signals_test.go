package signals

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rawblock/onchain-fusion/internal/store"
	"github.com/rawblock/onchain-fusion/pkg/models"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUTXOVote_BoundedAndWeighted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertUTXOBatch(ctx, []models.UTXO{
		{Txid: "a", VoutIndex: 0, BTCValue: 1.0, CreationBlock: 100, CreationTime: time.Now(), CreationPriceUSD: 10000},
		{Txid: "b", VoutIndex: 0, BTCValue: 2.0, CreationBlock: 100, CreationTime: time.Now(), CreationPriceUSD: 12000},
	}); err != nil {
		t.Fatalf("InsertUTXOBatch() error = %v", err)
	}

	sv, err := UTXOVote(ctx, s, UTXOVoteInputs{CurrentPriceUSD: 40000, Height: 800000, STHLTHCutoffDays: 155}, 0.2)
	if err != nil {
		t.Fatalf("UTXOVote() error = %v", err)
	}
	if sv.Name != "utxo" {
		t.Errorf("Name = %q, want utxo", sv.Name)
	}
	if sv.Vote == nil {
		t.Fatal("Vote is nil, want a value")
	}
	if *sv.Vote < -1 || *sv.Vote > 1 {
		t.Errorf("Vote = %v, want in [-1,1]", *sv.Vote)
	}
	if sv.Weight != 0.2 {
		t.Errorf("Weight = %v, want 0.2", sv.Weight)
	}
}

func TestUTXOVote_EmptyStoreIsDeepCapitulation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sv, err := UTXOVote(ctx, s, UTXOVoteInputs{CurrentPriceUSD: 40000, Height: 800000, STHLTHCutoffDays: 155}, 0.2)
	if err != nil {
		t.Fatalf("UTXOVote() error = %v", err)
	}
	// An empty store has 0% unspent supply in profit (CAPITULATION) and a
	// zero Reserve Risk ratio (STRONG_BUY), outweighing MVRV-Z's neutral
	// NORMAL zone with no history — net positive (accumulate) composite.
	if sv.Vote == nil || *sv.Vote <= 0 {
		t.Errorf("Vote = %v, want > 0 for an empty (all-capitulation) store", sv.Vote)
	}
}
