// Package config loads and validates the process-wide configuration,
// including the fusion weights, sample count, seed, perturbation and bimodality
// settings, the STH/LTH cutoff and the derivatives settings. The fusion
// BUY/SELL action thresholds and the metric zone bounds are not here: they
// are package constants in internal/fusion and pkg/models.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the single recognised options set, loaded once at process
// start-up and never mutated afterward.
type Config struct {
	StoreDBPath string

	BTCRPCHost string
	BTCRPCUser string
	BTCRPCPass string

	PriceAPIBaseURL string

	DerivativesEnabled bool
	DerivativesDBURL   string
	DerivativesCacheTTLSeconds int

	FusionSampleCount int
	FusionSeed        int64
	FusionPerturbK    float64
	FusionBimodalSaddleDepth float64

	WeightWhale   float64
	WeightUTXO    float64
	WeightFunding float64
	WeightOI      float64

	STHLTHCutoffDays int
	DefaultBucketSizeUSD float64
}

// Load reads .env (if present) into the process environment, then builds a
// Config from os.Getenv, applying defaults and validating eagerly. Mirrors
// the teacher's requireEnv/getEnvOrDefault split in cmd/engine/main.go,
// generalised into a single loader instead of inline calls scattered
// through main().
func Load() (Config, error) {
	_ = godotenv.Load() // .env is optional; absence is not an error

	storeDBPath := os.Getenv("STORE_DB_PATH")
	if storeDBPath == "" {
		return Config{}, fmt.Errorf("config: STORE_DB_PATH is required")
	}

	cfg := Config{
		StoreDBPath:                storeDBPath,
		BTCRPCHost:                 getEnvOrDefault("BTC_RPC_HOST", "localhost:8332"),
		BTCRPCUser:                 os.Getenv("BTC_RPC_USER"),
		BTCRPCPass:                 os.Getenv("BTC_RPC_PASS"),
		PriceAPIBaseURL:            getEnvOrDefault("PRICE_API_BASE_URL", "https://api.example.invalid/v1/price"),
		DerivativesDBURL:           os.Getenv("DERIVATIVES_DB_URL"),
		DerivativesEnabled:         getEnvBool("DERIVATIVES_ENABLED", false),
		DerivativesCacheTTLSeconds: getEnvInt("DERIVATIVES_CACHE_TTL_SECONDS", 300),
		FusionSampleCount:          getEnvInt("FUSION_SAMPLE_COUNT", 1000),
		FusionSeed:                 int64(getEnvInt("FUSION_SEED", 42)),
		FusionPerturbK:             getEnvFloat("FUSION_PERTURB_K", 0.25),
		FusionBimodalSaddleDepth:   getEnvFloat("FUSION_BIMODAL_SADDLE_DEPTH", 0.30),
		WeightWhale:                getEnvFloat("WEIGHT_WHALE", 0.40),
		WeightUTXO:                 getEnvFloat("WEIGHT_UTXO", 0.20),
		WeightFunding:              getEnvFloat("WEIGHT_FUNDING", 0.25),
		WeightOI:                   getEnvFloat("WEIGHT_OI", 0.15),
		STHLTHCutoffDays:           getEnvInt("STH_LTH_CUTOFF_DAYS", 155),
		DefaultBucketSizeUSD:       getEnvFloat("DEFAULT_BUCKET_SIZE_USD", 5000),
	}

	if cfg.DerivativesEnabled && cfg.DerivativesDBURL == "" {
		return Config{}, fmt.Errorf("config: DERIVATIVES_ENABLED is true but DERIVATIVES_DB_URL is empty")
	}
	if cfg.FusionSampleCount <= 0 {
		return Config{}, fmt.Errorf("config: FUSION_SAMPLE_COUNT must be > 0")
	}
	return cfg, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
