package models

import "time"

// UTXO is the unit record persisted by the lifecycle store (C1). Identified
// by (Txid, VoutIndex). Once Spent is true, the spend fields are immutable —
// nothing in this module ever flips Spent back to false or rewrites a spent
// UTXO's creation fields.
type UTXO struct {
	Txid             string
	VoutIndex        uint32
	BTCValue         float64 // non-negative, 8-fraction precision
	CreationBlock    int64
	CreationTime     time.Time
	CreationPriceUSD float64 // positive

	Spent          bool
	SpentBlock     int64
	SpentTime      time.Time
	SpentPriceUSD  float64
}

// DailyPrice is a single (date, price) row, unique by date, strictly
// positive, spanning from the earliest creation date in the store to the
// present. A gap is a fatal data-quality condition for any metric touching
// that date.
type DailyPrice struct {
	Date      string // YYYY-MM-DD, UTC
	PriceUSD  float64
}

// BlockHeight maps a block height to its wall-clock timestamp. Timestamps
// are monotonically non-decreasing in height.
type BlockHeight struct {
	Height    int64
	Timestamp time.Time
}

// CohortFilter restricts a realised-cap or cohort query to a creation-block
// range. A nil bound means "no restriction" on that side — a pointer
// rather than a zero-value sentinel, since 0 (genesis height) is itself a
// legitimate bound once a cohort cutoff clamps down to it.
type CohortFilter struct {
	MinCreationBlock *int64 // inclusive
	MaxCreationBlock *int64 // inclusive
}

// CohortMin builds a CohortFilter with only a lower bound set.
func CohortMin(block int64) CohortFilter {
	return CohortFilter{MinCreationBlock: &block}
}

// CohortMax builds a CohortFilter with only an upper bound set.
func CohortMax(block int64) CohortFilter {
	return CohortFilter{MaxCreationBlock: &block}
}

// PriceBucket is one row of a URPD-style distribution: unspent BTC grouped
// by the price bucket its UTXOs were created at.
type PriceBucket struct {
	PriceLow  float64
	PriceHigh float64
	BTC       float64
	Count     int64
}

// SpentRecord is one row yielded by the store's spent-in-window iterator:
// enough to compute realised profit/loss and CDD/VDD without a second pass
// over the UTXO table.
type SpentRecord struct {
	BTCValue         float64
	CreationBlock    int64
	CreationPriceUSD float64
	SpentBlock       int64
	SpentPriceUSD    float64
	AgeDays          float64
}
