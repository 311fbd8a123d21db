package models

import (
	"math"
	"time"
)

// Zone is a metric's closed enumeration label. Each metric defines its own
// set of valid zones; a zone value is only meaningful together with the
// metric that produced it.
type Zone string

const (
	// Supply in Profit/Loss market phases.
	ZoneEuphoria     Zone = "EUPHORIA"
	ZoneBull         Zone = "BULL"
	ZoneTransition   Zone = "TRANSITION"
	ZoneCapitulation Zone = "CAPITULATION"

	// MVRV-Z zones.
	ZoneExtremeSell  Zone = "EXTREME_SELL"
	ZoneCaution      Zone = "CAUTION"
	ZoneNormal       Zone = "NORMAL"
	ZoneAccumulation Zone = "ACCUMULATION"

	// Reserve Risk zones.
	ZoneStrongBuy    Zone = "STRONG_BUY"
	ZoneFairValue    Zone = "FAIR_VALUE"
	ZoneDistribution Zone = "DISTRIBUTION"

	// Sell-side Risk zones.
	ZoneLow       Zone = "LOW"
	ZoneElevated  Zone = "ELEVATED"
	ZoneAggressive Zone = "AGGRESSIVE"

	// CDD/VDD zones.
	ZoneLowActivity       Zone = "LOW_ACTIVITY"
	ZoneSpike             Zone = "SPIKE"
	ZoneInsufficientHistory Zone = "INSUFFICIENT_HISTORY"

	// P/L Ratio zones.
	ZoneExtremeProfit Zone = "EXTREME_PROFIT"
	ZoneProfit        Zone = "PROFIT"
	ZoneNeutral       Zone = "NEUTRAL"
	ZoneLoss          Zone = "LOSS"
	ZoneExtremeLoss   Zone = "EXTREME_LOSS"

	// NUPL zones (supplemental metric, §4.4 component table).
	ZoneNUPLCapitulation Zone = "CAPITULATION"
	ZoneNUPLHopeFear     Zone = "HOPE_FEAR"
	ZoneNUPLOptimism     Zone = "OPTIMISM_BELIEF"
	ZoneNUPLEuphoria     Zone = "EUPHORIA_GREED"
)

func validPct(v float64) bool    { return v >= 0 && v <= 100 }
func validConf(v float64) bool   { return v >= 0 && v <= 1 }
func validSignal(v float64) bool { return v >= -1 && v <= 1 }

// URPDBucket is one price bucket of the UTXO Realised Price Distribution.
type URPDBucket struct {
	PriceLow    float64
	PriceHigh   float64
	BTC         float64
	Count       int64
	PctOfTotal  float64
}

// URPDResult is the frozen output of the URPD metric (§4.4.1). Buckets are
// ordered by price descending; PctOfTotal across buckets sums to 100±0.01.
type URPDResult struct {
	Buckets             []URPDBucket
	SupplyAbovePriceBTC float64
	SupplyBelowPriceBTC float64
	DominantBucketIndex int
	CurrentPriceUSD     float64
	BucketSizeUSD       float64
	Confidence          float64
	BlockHeight         int64
	ComputedAt          time.Time
}

// NewURPDResult validates and constructs a URPDResult. Bucket ordering and
// the 100%±0.01 closure are checked here rather than left to the caller.
func NewURPDResult(buckets []URPDBucket, supplyAbove, supplyBelow float64, dominant int, currentPrice, bucketSize, confidence float64, height int64, at time.Time) (URPDResult, error) {
	if !validConf(confidence) {
		return URPDResult{}, newValidationError("URPDResult", "Confidence", "must be in [0,1]")
	}
	if bucketSize <= 0 {
		return URPDResult{}, newValidationError("URPDResult", "BucketSizeUSD", "must be > 0")
	}
	if currentPrice <= 0 {
		return URPDResult{}, newValidationError("URPDResult", "CurrentPriceUSD", "must be > 0")
	}
	if len(buckets) > 0 {
		sum := 0.0
		for i, b := range buckets {
			if !validPct(b.PctOfTotal) {
				return URPDResult{}, newValidationError("URPDResult", "Buckets[].PctOfTotal", "must be in [0,100]")
			}
			sum += b.PctOfTotal
			if i > 0 && b.PriceLow > buckets[i-1].PriceLow {
				return URPDResult{}, newValidationError("URPDResult", "Buckets", "must be ordered by price descending")
			}
		}
		if math.Abs(sum-100) > 0.01 {
			return URPDResult{}, newValidationError("URPDResult", "Buckets", "pct_of_total must sum to 100±0.01")
		}
		if dominant < 0 || dominant >= len(buckets) {
			return URPDResult{}, newValidationError("URPDResult", "DominantBucketIndex", "out of range")
		}
	}
	return URPDResult{
		Buckets:             buckets,
		SupplyAbovePriceBTC: supplyAbove,
		SupplyBelowPriceBTC: supplyBelow,
		DominantBucketIndex: dominant,
		CurrentPriceUSD:     currentPrice,
		BucketSizeUSD:       bucketSize,
		Confidence:          confidence,
		BlockHeight:         height,
		ComputedAt:          at,
	}, nil
}

// SupplyInProfitLossResult is the §4.4.2 metric output.
type SupplyInProfitLossResult struct {
	InProfitBTC    float64
	InLossBTC      float64
	BreakevenBTC   float64
	PctInProfit    float64
	PctInLoss      float64
	PctBreakeven   float64
	STHUnspentBTC  float64
	LTHUnspentBTC  float64
	MarketPhase    Zone
	SignalStrength float64
	Confidence     float64
	BlockHeight    int64
	ComputedAt     time.Time
}

func classifyMarketPhase(pctInProfit float64) Zone {
	switch {
	case pctInProfit > 95:
		return ZoneEuphoria
	case pctInProfit > 80:
		return ZoneBull
	case pctInProfit >= 50:
		return ZoneTransition
	default:
		return ZoneCapitulation
	}
}

// ClampSignalStrength implements clamp(|p-50|/50, 0, 1).
func ClampSignalStrength(pctInProfit float64) float64 {
	s := math.Abs(pctInProfit-50) / 50
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func NewSupplyInProfitLossResult(inProfit, inLoss, breakeven, pctProfit, pctLoss, pctBreakeven, sth, lth, confidence float64, height int64, at time.Time) (SupplyInProfitLossResult, error) {
	if !validConf(confidence) {
		return SupplyInProfitLossResult{}, newValidationError("SupplyInProfitLossResult", "Confidence", "must be in [0,1]")
	}
	for name, v := range map[string]float64{"PctInProfit": pctProfit, "PctInLoss": pctLoss, "PctBreakeven": pctBreakeven} {
		if !validPct(v) {
			return SupplyInProfitLossResult{}, newValidationError("SupplyInProfitLossResult", name, "must be in [0,100]")
		}
	}
	unspent := sth + lth
	total := inProfit + inLoss + breakeven
	if total > 0 && math.Abs(unspent-total)/total > 0.01 {
		return SupplyInProfitLossResult{}, newValidationError("SupplyInProfitLossResult", "STHUnspentBTC+LTHUnspentBTC", "must equal total unspent within 1%")
	}
	return SupplyInProfitLossResult{
		InProfitBTC:    inProfit,
		InLossBTC:      inLoss,
		BreakevenBTC:   breakeven,
		PctInProfit:    pctProfit,
		PctInLoss:      pctLoss,
		PctBreakeven:   pctBreakeven,
		STHUnspentBTC:  sth,
		LTHUnspentBTC:  lth,
		MarketPhase:    classifyMarketPhase(pctProfit),
		SignalStrength: ClampSignalStrength(pctProfit),
		Confidence:     confidence,
		BlockHeight:    height,
		ComputedAt:     at,
	}, nil
}

// MVRVResult is the §4.4.3 metric output (MVRV, MVRV-Z, and cohort splits).
type MVRVResult struct {
	MarketCapUSD       float64
	RealisedCapUSD     float64
	MVRV               float64
	MVRVZ              float64
	Zone               Zone
	STHRealisedCapUSD  float64
	LTHRealisedCapUSD  float64
	Confidence         float64
	BlockHeight        int64
	ComputedAt         time.Time
}

func classifyMVRVZone(mvrvZ float64) (Zone, float64) {
	switch {
	case mvrvZ > 7:
		return ZoneExtremeSell, 0.95
	case mvrvZ > 3:
		return ZoneCaution, 0.75
	case mvrvZ >= -0.5:
		return ZoneNormal, 0.50
	default:
		return ZoneAccumulation, 0.85
	}
}

func NewMVRVResult(marketCap, realisedCap, mvrvZ, sthRealised, lthRealised float64, height int64, at time.Time) (MVRVResult, error) {
	total := sthRealised + lthRealised
	if realisedCap > 0 && math.Abs(total-realisedCap)/realisedCap > 0.01 {
		return MVRVResult{}, newValidationError("MVRVResult", "STHRealisedCapUSD+LTHRealisedCapUSD", "must equal total realised cap within 1%")
	}
	mvrv := 0.0
	if realisedCap > 0 {
		mvrv = marketCap / realisedCap
	}
	zone, conf := classifyMVRVZone(mvrvZ)
	return MVRVResult{
		MarketCapUSD:      marketCap,
		RealisedCapUSD:    realisedCap,
		MVRV:              mvrv,
		MVRVZ:             mvrvZ,
		Zone:              zone,
		STHRealisedCapUSD: sthRealised,
		LTHRealisedCapUSD: lthRealised,
		Confidence:        conf,
		BlockHeight:       height,
		ComputedAt:        at,
	}, nil
}

// ReserveRiskResult is the §4.4.4 metric output.
type ReserveRiskResult struct {
	ReserveRisk      float64
	HODLBank         float64
	UnspentSupplyBTC float64
	CurrentPriceUSD  float64
	Zone             Zone
	Confidence       float64
	BlockHeight      int64
	ComputedAt       time.Time
}

func classifyReserveRiskZone(rr float64) (Zone, float64) {
	switch {
	case rr < 0.002:
		return ZoneStrongBuy, 0.95
	case rr < 0.008:
		return ZoneAccumulation, 0.80
	case rr < 0.02:
		return ZoneFairValue, 0.60
	default:
		return ZoneDistribution, 0.80
	}
}

func NewReserveRiskResult(reserveRisk, hodlBank, unspentSupply, currentPrice float64, height int64, at time.Time) (ReserveRiskResult, error) {
	if currentPrice <= 0 {
		return ReserveRiskResult{}, newValidationError("ReserveRiskResult", "CurrentPriceUSD", "must be > 0")
	}
	zone, conf := classifyReserveRiskZone(reserveRisk)
	return ReserveRiskResult{
		ReserveRisk:      reserveRisk,
		HODLBank:         hodlBank,
		UnspentSupplyBTC: unspentSupply,
		CurrentPriceUSD:  currentPrice,
		Zone:             zone,
		Confidence:       conf,
		BlockHeight:      height,
		ComputedAt:       at,
	}, nil
}

// SellSideRiskResult is the §4.4.5 metric output. SellSideRisk is a
// fraction of market cap (not a percentage), matching the zone bounds in
// the spec (0.1%, 0.3%, 1%).
type SellSideRiskResult struct {
	RealisedProfitUSD float64
	RealisedLossUSD   float64
	MarketCapUSD      float64
	SellSideRisk      float64
	WindowDays        int
	Zone              Zone
	Confidence        float64
	BlockHeight       int64
	ComputedAt        time.Time
}

func classifySellSideRiskZone(ratio float64) (Zone, float64) {
	switch {
	case ratio < 0.001:
		return ZoneLow, 0.60
	case ratio < 0.003:
		return ZoneNormal, 0.70
	case ratio < 0.01:
		return ZoneElevated, 0.80
	default:
		return ZoneAggressive, 0.90
	}
}

func NewSellSideRiskResult(realisedProfit, realisedLoss, marketCap float64, windowDays int, height int64, at time.Time) (SellSideRiskResult, error) {
	if windowDays <= 0 {
		return SellSideRiskResult{}, newValidationError("SellSideRiskResult", "WindowDays", "must be > 0")
	}
	ratio := 0.0
	if marketCap > 0 {
		ratio = realisedProfit / marketCap
	}
	zone, conf := classifySellSideRiskZone(ratio)
	return SellSideRiskResult{
		RealisedProfitUSD: realisedProfit,
		RealisedLossUSD:   realisedLoss,
		MarketCapUSD:      marketCap,
		SellSideRisk:      ratio,
		WindowDays:        windowDays,
		Zone:              zone,
		Confidence:        conf,
		BlockHeight:       height,
		ComputedAt:        at,
	}, nil
}

// CDDVDDResult is the §4.4.6 metric output. VDDMultiple is nil when fewer
// than 365 days of VDD history exist (InsufficientHistory degraded case).
type CDDVDDResult struct {
	DailyCDD     float64
	MeanCDD      float64
	DailyVDD     float64
	VDDMultiple  *float64
	WindowDays   int
	Zone         Zone
	Confidence   float64
	BlockHeight  int64
	ComputedAt   time.Time
}

func classifyVDDZone(multiple float64) (Zone, float64) {
	switch {
	case multiple < 0.5:
		return ZoneLowActivity, 0.60
	case multiple <= 1.5:
		return ZoneNormal, 0.70
	case multiple <= 2.0:
		return ZoneElevated, 0.80
	default:
		return ZoneSpike, 0.90
	}
}

func NewCDDVDDResult(dailyCDD, meanCDD, dailyVDD float64, vddMultiple *float64, windowDays int, height int64, at time.Time) (CDDVDDResult, error) {
	if windowDays <= 0 {
		return CDDVDDResult{}, newValidationError("CDDVDDResult", "WindowDays", "must be > 0")
	}
	zone := ZoneInsufficientHistory
	conf := 0.40
	if vddMultiple != nil {
		zone, conf = classifyVDDZone(*vddMultiple)
	}
	return CDDVDDResult{
		DailyCDD:    dailyCDD,
		MeanCDD:     meanCDD,
		DailyVDD:    dailyVDD,
		VDDMultiple: vddMultiple,
		WindowDays:  windowDays,
		Zone:        zone,
		Confidence:  conf,
		BlockHeight: height,
		ComputedAt:  at,
	}, nil
}

// PLRatioResult is the §4.4.7 metric output. PLRatio uses the documented
// sentinel math.Inf(1) when Loss==0 and Profit>0 (pure profit, undefined
// ratio), and 0 when both Profit and Loss are 0 (no realised activity).
type PLRatioResult struct {
	Profit      float64
	Loss        float64
	PLRatio     float64
	PLDominance float64
	Zone        Zone
	Confidence  float64
	WindowDays  int
	BlockHeight int64
	ComputedAt  time.Time
}

const plRatioEpsilon = 1e-8

func classifyPLDominanceZone(dominance float64) (Zone, float64) {
	switch {
	case dominance > 0.67:
		return ZoneExtremeProfit, 0.85
	case dominance > 0.20:
		return ZoneProfit, 0.70
	case dominance >= -0.20:
		return ZoneNeutral, 0.50
	case dominance >= -0.67:
		return ZoneLoss, 0.70
	default:
		return ZoneExtremeLoss, 0.85
	}
}

func NewPLRatioResult(profit, loss float64, windowDays int, height int64, at time.Time) (PLRatioResult, error) {
	if windowDays <= 0 {
		return PLRatioResult{}, newValidationError("PLRatioResult", "WindowDays", "must be > 0")
	}
	var ratio float64
	switch {
	case loss > plRatioEpsilon:
		ratio = profit / loss
	case profit > 0:
		ratio = math.Inf(1)
	default:
		ratio = 0
	}
	denom := profit + loss
	dominance := 0.0
	if denom > plRatioEpsilon {
		dominance = (profit - loss) / denom
	}
	zone, conf := classifyPLDominanceZone(dominance)
	return PLRatioResult{
		Profit:      profit,
		Loss:        loss,
		PLRatio:     ratio,
		PLDominance: dominance,
		Zone:        zone,
		Confidence:  conf,
		WindowDays:  windowDays,
		BlockHeight: height,
		ComputedAt:  at,
	}, nil
}

// NUPLResult is the supplemental Net-Unrealised-Profit/Loss metric named in
// the §2 component table but not given its own §4.4 subsection.
type NUPLResult struct {
	NUPL           float64
	MarketCapUSD   float64
	RealisedCapUSD float64
	Zone           Zone
	Confidence     float64
	BlockHeight    int64
	ComputedAt     time.Time
}

func classifyNUPLZone(nupl float64) Zone {
	switch {
	case nupl > 0.5:
		return ZoneNUPLEuphoria
	case nupl > 0.25:
		return ZoneNUPLOptimism
	case nupl >= 0:
		return ZoneNUPLHopeFear
	default:
		return ZoneNUPLCapitulation
	}
}

func NewNUPLResult(marketCap, realisedCap float64, height int64, at time.Time) (NUPLResult, error) {
	nupl := 0.0
	if marketCap > 0 {
		nupl = (marketCap - realisedCap) / marketCap
	}
	return NUPLResult{
		NUPL:           nupl,
		MarketCapUSD:   marketCap,
		RealisedCapUSD: realisedCap,
		Zone:           classifyNUPLZone(nupl),
		Confidence:     0.60,
		BlockHeight:    height,
		ComputedAt:     at,
	}, nil
}
