// Package store implements the UTXO lifecycle store (C1): a single SQLite
// file holding the unspent/spent UTXO set, the daily price index, and the
// block height/timestamp map that every metric in internal/metrics reads
// through.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rawblock/onchain-fusion/pkg/models"
)

// Store wraps a SQLite connection pool. Writes are serialized through a
// single connection (SetMaxOpenConns(1)) since SQLite allows only one writer
// at a time regardless of WAL mode; readers share the same pool. Most
// queries here are a single aggregating statement; the SpentIterator from
// GetSpentInWindow holds that one connection until it is closed.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the lifecycle store at path and runs migrations.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS utxos (
				txid               TEXT    NOT NULL,
				vout_index         INTEGER NOT NULL,
				btc_value          REAL    NOT NULL,
				creation_block     INTEGER NOT NULL,
				creation_time      TEXT    NOT NULL,
				creation_price_usd REAL    NOT NULL,
				is_spent           INTEGER NOT NULL DEFAULT 0,
				spent_block        INTEGER,
				spent_time         TEXT,
				spent_price_usd    REAL,
				PRIMARY KEY (txid, vout_index)
			);
			CREATE INDEX IF NOT EXISTS idx_utxos_is_spent ON utxos(is_spent);
			CREATE INDEX IF NOT EXISTS idx_utxos_creation_block ON utxos(creation_block);
			CREATE INDEX IF NOT EXISTS idx_utxos_spent_block ON utxos(spent_block);

			CREATE TABLE IF NOT EXISTS daily_prices (
				date      TEXT PRIMARY KEY,
				price_usd REAL NOT NULL
			);

			CREATE TABLE IF NOT EXISTS block_heights (
				height    INTEGER PRIMARY KEY,
				timestamp TEXT NOT NULL
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
	}
	return nil
}

// AttachReadOnly mounts a second SQLite file read-only under alias, the
// stand-in for the spec's cross-database read-only attachment. The caller
// is responsible for ensuring alias is a trusted identifier, never
// user-supplied input — SQLite's ATTACH statement does not accept bound
// parameters for the schema name.
func (s *Store) AttachReadOnly(ctx context.Context, path, alias string) error {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("ATTACH DATABASE '%s' AS %s", dsn, alias))
	if err != nil {
		return fmt.Errorf("attach %s read-only: %w", alias, err)
	}
	return nil
}

// execer is the subset of *sql.DB and *sql.Tx that the insert/mark-spent
// helpers need, so the same statement logic runs either as its own
// standalone transaction (InsertUTXOBatch, MarkSpent) or as one step of a
// larger caller-managed transaction (ApplyBlock).
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insertUTXOBatch bulk-inserts newly created UTXOs using one multi-row
// INSERT, the SQLite equivalent of a COPY path. A (txid, vout_index)
// already on file is left untouched rather than rejected — replaying the
// same snapshot or block range twice must not disturb a spend recorded by
// the first pass.
func insertUTXOBatch(ctx context.Context, ex execer, utxos []models.UTXO) error {
	if len(utxos) == 0 {
		return nil
	}
	query := "INSERT OR IGNORE INTO utxos (txid, vout_index, btc_value, creation_block, creation_time, creation_price_usd, is_spent) VALUES "
	args := make([]any, 0, len(utxos)*7)
	for i, u := range utxos {
		if i > 0 {
			query += ","
		}
		query += "(?,?,?,?,?,?,0)"
		args = append(args, u.Txid, u.VoutIndex, u.BTCValue, u.CreationBlock, u.CreationTime.UTC().Format(time.RFC3339), u.CreationPriceUSD)
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("batch insert utxos: %w", err)
	}
	return nil
}

// InsertUTXOBatch is insertUTXOBatch wrapped in its own transaction, for
// callers (the Tier-1 bulk loader) that have no wider block-level
// transaction to join.
func (s *Store) InsertUTXOBatch(ctx context.Context, utxos []models.UTXO) error {
	if len(utxos) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	defer tx.Rollback()
	if err := insertUTXOBatch(ctx, tx, utxos); err != nil {
		return err
	}
	return tx.Commit()
}

// markSpentStatus reports what markSpent found.
type markSpentStatus int

const (
	markSpentApplied markSpentStatus = iota
	markSpentAlreadyIdentical
	markSpentUnknownUTXO
	markSpentConflict
)

// markSpent records the spend of a single UTXO against ex. It never
// returns an error for a normal "this spend can't be resolved against
// what's on file" outcome (markSpentUnknownUTXO/markSpentConflict) — only
// for a genuine execution failure — so a caller replaying a block can
// choose to treat those as gap data without aborting a shared transaction.
// Re-marking a row with the exact spend it already carries is reported as
// markSpentAlreadyIdentical, not markSpentApplied: that is what a replay
// of the same block range looks like, and it must leave the row
// bitwise-identical.
func markSpent(ctx context.Context, ex execer, txid string, voutIndex uint32, spentBlock int64, spentTime time.Time, spentPriceUSD float64) (markSpentStatus, error) {
	res, err := ex.ExecContext(ctx, `
		UPDATE utxos
		   SET is_spent = 1, spent_block = ?, spent_time = ?, spent_price_usd = ?
		 WHERE txid = ? AND vout_index = ? AND is_spent = 0`,
		spentBlock, spentTime.UTC().Format(time.RFC3339), spentPriceUSD, txid, voutIndex)
	if err != nil {
		return 0, fmt.Errorf("mark spent %s:%d: %w", txid, voutIndex, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark spent %s:%d: %w", txid, voutIndex, err)
	}
	if n > 0 {
		return markSpentApplied, nil
	}

	var existingBlock sql.NullInt64
	var existingPrice sql.NullFloat64
	var isSpent bool
	err = ex.QueryRowContext(ctx,
		`SELECT is_spent, spent_block, spent_price_usd FROM utxos WHERE txid = ? AND vout_index = ?`,
		txid, voutIndex).Scan(&isSpent, &existingBlock, &existingPrice)
	if err == sql.ErrNoRows {
		return markSpentUnknownUTXO, nil
	}
	if err != nil {
		return 0, fmt.Errorf("mark spent %s:%d: %w", txid, voutIndex, err)
	}
	if isSpent && existingBlock.Valid && existingBlock.Int64 == spentBlock && existingPrice.Float64 == spentPriceUSD {
		return markSpentAlreadyIdentical, nil
	}
	return markSpentConflict, nil
}

// MarkSpent is markSpent wrapped for standalone callers: an unresolved
// spend (unknown UTXO, or a conflicting spend already on file) surfaces
// as a *models.StoreIntegrityError instead of the internal status code,
// since a caller with no block-level gap handling of its own just needs
// to know the write didn't happen and why.
func (s *Store) MarkSpent(ctx context.Context, txid string, voutIndex uint32, spentBlock int64, spentTime time.Time, spentPriceUSD float64) error {
	status, err := markSpent(ctx, s.db, txid, voutIndex, spentBlock, spentTime, spentPriceUSD)
	if err != nil {
		return err
	}
	switch status {
	case markSpentUnknownUTXO:
		return &models.StoreIntegrityError{Table: "utxos", Key: fmt.Sprintf("%s:%d", txid, voutIndex), Msg: "no such UTXO"}
	case markSpentConflict:
		return &models.StoreIntegrityError{Table: "utxos", Key: fmt.Sprintf("%s:%d", txid, voutIndex), Msg: "already spent, spend is immutable"}
	default:
		return nil
	}
}

// SpendInput is one prevout a block's transactions claim to spend.
type SpendInput struct {
	Txid          string
	VoutIndex     uint32
	SpentBlock    int64
	SpentTime     time.Time
	SpentPriceUSD float64
}

// ApplyBlock commits one block's new outputs and resolvable spends in a
// single transaction: either the whole block lands durably or none of it
// does, satisfying the "commit per block, no partial block commits"
// requirement. An unresolved spend (unknown prevout, or one already spent
// differently) is returned in unresolved rather than aborting the
// transaction — that is gap data the caller reports and moves past, not a
// write failure; a genuine execution error aborts and rolls back the
// entire block.
func (s *Store) ApplyBlock(ctx context.Context, newOutputs []models.UTXO, spends []SpendInput) (unresolved []SpendInput, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("apply block: begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertUTXOBatch(ctx, tx, newOutputs); err != nil {
		return nil, fmt.Errorf("apply block: insert outputs: %w", err)
	}

	for _, sp := range spends {
		status, err := markSpent(ctx, tx, sp.Txid, sp.VoutIndex, sp.SpentBlock, sp.SpentTime, sp.SpentPriceUSD)
		if err != nil {
			return nil, fmt.Errorf("apply block: mark spent %s:%d: %w", sp.Txid, sp.VoutIndex, err)
		}
		if status == markSpentUnknownUTXO || status == markSpentConflict {
			unresolved = append(unresolved, sp)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("apply block: commit: %w", err)
	}
	return unresolved, nil
}

// UpsertDailyPrice writes or replaces the USD close for date.
func (s *Store) UpsertDailyPrice(ctx context.Context, date string, priceUSD float64) error {
	if priceUSD <= 0 {
		return &models.ValidationError{Type: "DailyPrice", Field: "PriceUSD", Msg: "must be > 0"}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO daily_prices (date, price_usd) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET price_usd = excluded.price_usd`, date, priceUSD)
	if err != nil {
		return fmt.Errorf("upsert daily price %s: %w", date, err)
	}
	return nil
}

// UpsertBlockHeight writes or replaces the timestamp for height.
func (s *Store) UpsertBlockHeight(ctx context.Context, height int64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO block_heights (height, timestamp) VALUES (?, ?)
		ON CONFLICT(height) DO UPDATE SET timestamp = excluded.timestamp`, height, ts.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert block height %d: %w", height, err)
	}
	return nil
}

// GetDailyPrice returns the USD close for date, or MissingPriceData if no
// row exists. Never interpolated.
func (s *Store) GetDailyPrice(ctx context.Context, date string) (float64, error) {
	var price float64
	err := s.db.QueryRowContext(ctx, `SELECT price_usd FROM daily_prices WHERE date = ?`, date).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, &models.MissingPriceData{Date: date}
	}
	if err != nil {
		return 0, fmt.Errorf("get daily price %s: %w", date, err)
	}
	return price, nil
}

// GetBlockDate returns the timestamp recorded for height, or
// MissingHeightData if no row exists.
func (s *Store) GetBlockDate(ctx context.Context, height int64) (time.Time, error) {
	var ts string
	err := s.db.QueryRowContext(ctx, `SELECT timestamp FROM block_heights WHERE height = ?`, height).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, &models.MissingHeightData{Height: height}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get block date %d: %w", height, err)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, &models.StoreIntegrityError{Table: "block_heights", Key: fmt.Sprintf("%d", height), Msg: "unparseable timestamp"}
	}
	return t, nil
}

func cohortWhere(filter models.CohortFilter) (string, []any) {
	clause := ""
	args := []any{}
	if filter.MinCreationBlock != nil {
		clause += " AND creation_block >= ?"
		args = append(args, *filter.MinCreationBlock)
	}
	if filter.MaxCreationBlock != nil {
		clause += " AND creation_block <= ?"
		args = append(args, *filter.MaxCreationBlock)
	}
	return clause, args
}

// GetUnspentSupply returns the total BTC and UTXO count of the currently
// unspent set, optionally restricted to a creation-block cohort.
func (s *Store) GetUnspentSupply(ctx context.Context, filter models.CohortFilter) (btc float64, count int64, err error) {
	where, args := cohortWhere(filter)
	q := "SELECT COALESCE(SUM(btc_value),0), COUNT(*) FROM utxos WHERE is_spent = 0" + where
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&btc, &count); err != nil {
		return 0, 0, fmt.Errorf("get unspent supply: %w", err)
	}
	return btc, count, nil
}

// GetRealizedCap returns SUM(btc_value * creation_price_usd) over the
// currently unspent set, optionally restricted to a creation-block cohort —
// the realised cap as of the cohort's own creation prices.
func (s *Store) GetRealizedCap(ctx context.Context, filter models.CohortFilter) (float64, error) {
	where, args := cohortWhere(filter)
	q := "SELECT COALESCE(SUM(btc_value * creation_price_usd),0) FROM utxos WHERE is_spent = 0" + where
	var cap float64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&cap); err != nil {
		return 0, fmt.Errorf("get realized cap: %w", err)
	}
	return cap, nil
}

// GetProfitLossBreakdown classifies the unspent set against currentPriceUSD:
// in-profit, in-loss, or breakeven (|current-creation| < breakevenFrac *
// current), returning total BTC in each bucket.
func (s *Store) GetProfitLossBreakdown(ctx context.Context, currentPriceUSD, breakevenFrac float64, filter models.CohortFilter) (inProfit, inLoss, breakeven float64, err error) {
	where, args := cohortWhere(filter)
	q := `
		SELECT
			COALESCE(SUM(CASE WHEN ABS(? - creation_price_usd) < ? * ? THEN btc_value ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN ? > creation_price_usd AND ABS(? - creation_price_usd) >= ? * ? THEN btc_value ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN ? < creation_price_usd AND ABS(? - creation_price_usd) >= ? * ? THEN btc_value ELSE 0 END), 0)
		FROM utxos
		WHERE is_spent = 0` + where
	params := []any{
		currentPriceUSD, breakevenFrac, currentPriceUSD,
		currentPriceUSD, currentPriceUSD, breakevenFrac, currentPriceUSD,
		currentPriceUSD, currentPriceUSD, breakevenFrac, currentPriceUSD,
	}
	params = append(params, args...)
	if err := s.db.QueryRowContext(ctx, q, params...).Scan(&breakeven, &inProfit, &inLoss); err != nil {
		return 0, 0, 0, fmt.Errorf("get profit/loss breakdown: %w", err)
	}
	return inProfit, inLoss, breakeven, nil
}

// GroupUnspentByPriceBucket buckets the unspent set by creation price into
// bucketSizeUSD-wide bands, ordered by price descending.
func (s *Store) GroupUnspentByPriceBucket(ctx context.Context, bucketSizeUSD float64, filter models.CohortFilter) ([]models.PriceBucket, error) {
	if bucketSizeUSD <= 0 {
		return nil, &models.ValidationError{Type: "GroupUnspentByPriceBucket", Field: "bucketSizeUSD", Msg: "must be > 0"}
	}
	where, args := cohortWhere(filter)
	q := `
		SELECT
			CAST(creation_price_usd / ? AS INTEGER) AS bucket,
			SUM(btc_value),
			COUNT(*)
		FROM utxos
		WHERE is_spent = 0` + where + `
		GROUP BY bucket
		ORDER BY bucket DESC`
	rows, err := s.db.QueryContext(ctx, q, append([]any{bucketSizeUSD}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("group unspent by price bucket: %w", err)
	}
	defer rows.Close()

	var buckets []models.PriceBucket
	for rows.Next() {
		var bucketIdx int64
		var btc float64
		var count int64
		if err := rows.Scan(&bucketIdx, &btc, &count); err != nil {
			return nil, fmt.Errorf("scan price bucket: %w", err)
		}
		buckets = append(buckets, models.PriceBucket{
			PriceLow:  float64(bucketIdx) * bucketSizeUSD,
			PriceHigh: float64(bucketIdx+1) * bucketSizeUSD,
			BTC:       btc,
			Count:     count,
		})
	}
	return buckets, rows.Err()
}

// SpentIterator is a lazy, finite, non-restartable sequence over UTXOs
// spent within a block-height window — matching the design note that a
// single pass is enough for every consumer (CDD/VDD, Sell-side Risk).
type SpentIterator struct {
	rows *sql.Rows
}

// Next advances the iterator. Returns false at end of stream or on error;
// call Err after Next returns false to distinguish the two.
func (it *SpentIterator) Next() bool {
	return it.rows.Next()
}

// Scan decodes the current row into rec.
func (it *SpentIterator) Scan(rec *models.SpentRecord) error {
	var creationTime, spentTime string
	if err := it.rows.Scan(&rec.BTCValue, &rec.CreationBlock, &rec.CreationPriceUSD, &rec.SpentBlock, &rec.SpentPriceUSD, &creationTime, &spentTime); err != nil {
		return fmt.Errorf("scan spent record: %w", err)
	}
	ct, err := time.Parse(time.RFC3339, creationTime)
	if err != nil {
		return &models.StoreIntegrityError{Table: "utxos", Key: "", Msg: "unparseable creation_time"}
	}
	st, err := time.Parse(time.RFC3339, spentTime)
	if err != nil {
		return &models.StoreIntegrityError{Table: "utxos", Key: "", Msg: "unparseable spent_time"}
	}
	rec.AgeDays = st.Sub(ct).Hours() / 24
	return nil
}

// Err returns the terminal error of the underlying row scan, if any.
func (it *SpentIterator) Err() error {
	return it.rows.Err()
}

// Close releases the underlying *sql.Rows. Always call after use.
func (it *SpentIterator) Close() error {
	return it.rows.Close()
}

// GetSpentInWindow returns a SpentIterator over UTXOs whose spent_block
// falls in [fromBlock, toBlock].
func (s *Store) GetSpentInWindow(ctx context.Context, fromBlock, toBlock int64) (*SpentIterator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT btc_value, creation_block, creation_price_usd, spent_block, spent_price_usd, creation_time, spent_time
		  FROM utxos
		 WHERE is_spent = 1 AND spent_block BETWEEN ? AND ?`, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("get spent in window: %w", err)
	}
	return &SpentIterator{rows: rows}, nil
}
