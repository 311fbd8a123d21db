package derivatives

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// alignmentWindow is how far a row's timestamp may drift from the target
// before it is treated as missing rather than stale-but-usable.
const alignmentWindow = 10 * time.Minute

// Source is a read-only connection to the externally-owned analytical
// database exposing funding_rate_history and open_interest_history (spec
// §6 wire contract). Grounded on the teacher's pgxpool.New/Ping pattern in
// internal/db/postgres.go; unlike that store, Source never calls Exec —
// only Query/QueryRow, enforcing the read-only contract from the Go side.
type Source struct {
	pool *pgxpool.Pool
}

// Connect opens a read-only pool against connStr.
func Connect(ctx context.Context, connStr string) (*Source, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("derivatives source: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("derivatives source: ping: %w", err)
	}
	return &Source{pool: pool}, nil
}

// Close releases the pool.
func (s *Source) Close() {
	s.pool.Close()
}

// LatestFundingRate returns the funding rate for symbol whose timestamp is
// nearest to at, within alignmentWindow. Returns false when the nearest row
// lies outside alignmentWindow; a symbol with no rows at all returns an error.
func (s *Source) LatestFundingRate(ctx context.Context, symbol string, at time.Time) (rate float64, ts time.Time, ok bool, err error) {
	row := s.pool.QueryRow(ctx, `
		SELECT funding_rate, "timestamp"
		  FROM funding_rate_history
		 WHERE symbol = $1
		 ORDER BY ABS(EXTRACT(EPOCH FROM ("timestamp" - $2::timestamptz)))
		 LIMIT 1`, symbol, at)
	if err := row.Scan(&rate, &ts); err != nil {
		return 0, time.Time{}, false, fmt.Errorf("latest funding rate: %w", err)
	}
	if absDuration(ts.Sub(at)) > alignmentWindow {
		return 0, time.Time{}, false, nil
	}
	return rate, ts, true, nil
}

// OpenInterestAt returns the open-interest notional for symbol nearest to
// at, within alignmentWindow.
func (s *Source) OpenInterestAt(ctx context.Context, symbol string, at time.Time) (value float64, ts time.Time, ok bool, err error) {
	row := s.pool.QueryRow(ctx, `
		SELECT open_interest_value, "timestamp"
		  FROM open_interest_history
		 WHERE symbol = $1
		 ORDER BY ABS(EXTRACT(EPOCH FROM ("timestamp" - $2::timestamptz)))
		 LIMIT 1`, symbol, at)
	if err := row.Scan(&value, &ts); err != nil {
		return 0, time.Time{}, false, fmt.Errorf("open interest at: %w", err)
	}
	if absDuration(ts.Sub(at)) > alignmentWindow {
		return 0, time.Time{}, false, nil
	}
	return value, ts, true, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
