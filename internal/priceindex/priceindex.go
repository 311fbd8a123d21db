// Package priceindex builds and refreshes the daily-price and block-height
// tables (C3) from external price and block-metadata endpoints. The
// external sources themselves are excluded collaborators per the core's
// scope — only the narrow interfaces they must satisfy live here.
package priceindex

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

// PriceSource resolves a USD close for a calendar date.
type PriceSource interface {
	FetchPrice(ctx context.Context, date string) (float64, error)
}

// HeightSource resolves the wall-clock timestamp of a block height.
type HeightSource interface {
	FetchBlockTime(ctx context.Context, height int64) (time.Time, error)
}

// Writer is the subset of the store's write contract C3 needs. Satisfied by
// *store.Store; kept as an interface here so C3 never imports the store
// package's full surface or any other writer's concerns.
type Writer interface {
	UpsertDailyPrice(ctx context.Context, date string, priceUSD float64) error
	UpsertBlockHeight(ctx context.Context, height int64, ts time.Time) error
}

// PriceFetchError names the date range that could not be resolved after
// retries.
type PriceFetchError struct {
	FromDate string
	ToDate   string
	Cause    error
}

func (e *PriceFetchError) Error() string {
	return fmt.Sprintf("price fetch failed for [%s, %s]: %v", e.FromDate, e.ToDate, e.Cause)
}

func (e *PriceFetchError) Unwrap() error { return e.Cause }

const (
	retryBase   = 1 * time.Second
	retryFactor = 2
	retryCap    = 3
)

// withRetry retries fn with exponential backoff (base 1s, factor 2, cap 3
// attempts), matching the teacher's long-timeout RPC wrapper conventions in
// internal/bitcoin/client.go generalised to a single reusable helper.
func withRetry(ctx context.Context, fn func() error) error {
	delay := retryBase
	var err error
	for attempt := 1; attempt <= retryCap; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == retryCap {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= retryFactor
	}
	return err
}

// Indexer refreshes the daily-price and height tables. Single-writer,
// append-mostly: late corrections overwrite by primary key via the
// writer's upsert methods, never a delete-then-insert.
type Indexer struct {
	prices  PriceSource
	heights HeightSource
	writer  Writer
}

func New(prices PriceSource, heights HeightSource, writer Writer) *Indexer {
	return &Indexer{prices: prices, heights: heights, writer: writer}
}

// RefreshPrice fetches and upserts the USD close for date, with retry and
// no interpolation — a date that cannot be resolved is surfaced, never
// filled in from a neighbour.
func (idx *Indexer) RefreshPrice(ctx context.Context, date string) error {
	var price float64
	err := withRetry(ctx, func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		defer cancel()
		p, err := idx.prices.FetchPrice(fetchCtx, date)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	if err != nil {
		return &PriceFetchError{FromDate: date, ToDate: date, Cause: err}
	}
	return idx.writer.UpsertDailyPrice(ctx, date, price)
}

// RefreshHeight fetches and upserts the timestamp for height, with the same
// retry policy as RefreshPrice.
func (idx *Indexer) RefreshHeight(ctx context.Context, height int64) error {
	var ts time.Time
	err := withRetry(ctx, func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		t, err := idx.heights.FetchBlockTime(fetchCtx, height)
		if err != nil {
			return err
		}
		ts = t
		return nil
	})
	if err != nil {
		return &models.ExternalUnavailable{Source: "block-height-source", Cause: err}
	}
	return idx.writer.UpsertBlockHeight(ctx, height, ts)
}

// RefreshRange refreshes every date in [fromDate, toDate] (inclusive,
// caller-supplied ascending slice of YYYY-MM-DD strings) and aborts at the
// first unresolved date, reporting the whole remaining range as failed.
func (idx *Indexer) RefreshRange(ctx context.Context, dates []string) error {
	for _, d := range dates {
		if err := idx.RefreshPrice(ctx, d); err != nil {
			return &PriceFetchError{FromDate: d, ToDate: dates[len(dates)-1], Cause: err}
		}
	}
	return nil
}
