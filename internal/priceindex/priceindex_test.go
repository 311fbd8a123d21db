package priceindex

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakePriceSource struct {
	failures int
	price    float64
}

func (f *fakePriceSource) FetchPrice(ctx context.Context, date string) (float64, error) {
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("transient error")
	}
	return f.price, nil
}

type fakeHeightSource struct {
	ts time.Time
}

func (f *fakeHeightSource) FetchBlockTime(ctx context.Context, height int64) (time.Time, error) {
	return f.ts, nil
}

type fakeWriter struct {
	prices  map[string]float64
	heights map[int64]time.Time
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{prices: map[string]float64{}, heights: map[int64]time.Time{}}
}

func (w *fakeWriter) UpsertDailyPrice(ctx context.Context, date string, priceUSD float64) error {
	w.prices[date] = priceUSD
	return nil
}

func (w *fakeWriter) UpsertBlockHeight(ctx context.Context, height int64, ts time.Time) error {
	w.heights[height] = ts
	return nil
}

func TestRefreshPrice_RetriesThenSucceeds(t *testing.T) {
	src := &fakePriceSource{failures: 2, price: 42000}
	w := newFakeWriter()
	idx := New(src, &fakeHeightSource{}, w)

	if err := idx.RefreshPrice(context.Background(), "2024-01-01"); err != nil {
		t.Fatalf("RefreshPrice() error = %v", err)
	}
	if w.prices["2024-01-01"] != 42000 {
		t.Errorf("price = %v, want 42000", w.prices["2024-01-01"])
	}
}

func TestRefreshPrice_ExhaustsRetriesReturnsTypedError(t *testing.T) {
	src := &fakePriceSource{failures: 10, price: 42000}
	w := newFakeWriter()
	idx := New(src, &fakeHeightSource{}, w)

	err := idx.RefreshPrice(context.Background(), "2024-01-01")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var pfe *PriceFetchError
	if !errors.As(err, &pfe) {
		t.Errorf("error type = %T, want *PriceFetchError", err)
	}
}

func TestRefreshHeight_Succeeds(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := newFakeWriter()
	idx := New(&fakePriceSource{}, &fakeHeightSource{ts: want}, w)

	if err := idx.RefreshHeight(context.Background(), 800000); err != nil {
		t.Fatalf("RefreshHeight() error = %v", err)
	}
	if !w.heights[800000].Equal(want) {
		t.Errorf("height timestamp = %v, want %v", w.heights[800000], want)
	}
}
