package models

import "time"

// ChainType identifies the chain family an address belongs to.
type ChainType string

const (
	ChainBitcoin  ChainType = "Bitcoin"
	ChainEthereum ChainType = "Ethereum"
	ChainSolana   ChainType = "Solana"
	ChainLedger   ChainType = "ICP"
	ChainUnknown  ChainType = "Unknown"
)

// TransferDirection marks which side of a transfer the analyzed address is on.
type TransferDirection string

const (
	DirectionSent     TransferDirection = "sent"
	DirectionReceived TransferDirection = "received"
	// DirectionFeeOnly marks a leg that carries no value but still paid a
	// fee (e.g. a failed or zero-value transaction sent by the address).
	DirectionFeeOnly TransferDirection = "fee_only"
	// DirectionObserved marks a transaction that involved the address
	// without moving value to or from it. It contributes only its block
	// ordinal to temporal features.
	DirectionObserved TransferDirection = "observed"
)

// TxContext is the closed classification of what a transaction was doing.
// Classification happens exactly once, in the per-chain normalizer.
type TxContext string

const (
	ContextDexSwap      TxContext = "dex_swap"
	ContextLending      TxContext = "lending"
	ContextStaking      TxContext = "staking"
	ContextPureTransfer TxContext = "pure_transfer"
	ContextOtherProgram TxContext = "other_program"
	ContextUnknown      TxContext = "unknown"
)

// NormalizedTransfer is the chain-agnostic shape every value-bearing leg of a
// transaction is reduced to before feature aggregation. A single chain
// transaction may produce zero, one, or several transfers (token legs).
// Immutable once created.
type NormalizedTransfer struct {
	// TxID groups the legs that came from one chain transaction.
	// Consecutive legs with the same TxID belong to the same transaction;
	// per-transaction quantities (fee, block, counterparty touches) are
	// carried on the first leg of each group only.
	TxID            string
	Timestamp       time.Time
	BlockOrdinal    uint64
	Direction       TransferDirection
	Counterparty    string
	ValueCommonUnit float64
	FeeCommonUnit   float64
	// ValueNative and FeeNative keep the chain-native denomination for
	// schemas that track it alongside the common unit.
	ValueNative float64
	FeeNative   float64
	IsToken     bool
	AssetID     string
	Context     TxContext
	Failed      bool
	// Programmatic marks legs from transactions that look machine-driven
	// (many instructions, many token legs, or known program involvement).
	Programmatic bool
	// PriceFetchFailed records that the asset could not be valued; its
	// ValueCommonUnit is zero by the oracle's failure contract.
	PriceFetchFailed bool
	// ExtraCounterparties holds every non-self address touched by the
	// transaction for chains whose records carry multiple peers per
	// transaction (UTXO inputs and outputs). Set on the first leg only.
	ExtraCounterparties []string
	// InstructionCount and TokenLegCount carry complexity signals for chains
	// whose schema uses them; zero elsewhere.
	InstructionCount int
	TokenLegCount    int
}

// PriceQuote is a cached exchange-rate lookup result. A ratio <= 0 is never
// cached with Success=true; failed lookups are cached as {0, false} so the
// same bucket is not re-fetched.
type PriceQuote struct {
	AssetID   string    `json:"asset_id"`
	Ratio     float64   `json:"ratio"`
	BucketKey string    `json:"bucket_key"`
	Success   bool      `json:"success"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ProviderHealth tracks consecutive failures for one price provider.
type ProviderHealth struct {
	ProviderID          string `json:"provider_id"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	IsHealthy           bool   `json:"is_healthy"`
}

// ModelMetadata is the training-time contract a loaded classifier carries:
// the exact feature ordering, the fitted scaler parameters, and the
// probability threshold chosen at deployment.
type ModelMetadata struct {
	FeatureNames        []string  `json:"feature_names"`
	ScalerMean          []float64 `json:"scaler_mean"`
	ScalerScale         []float64 `json:"scaler_scale"`
	DeploymentThreshold float64   `json:"threshold"`
}

// Validate checks the length invariant between feature names and scaler
// parameters.
func (m *ModelMetadata) Validate() error {
	if len(m.FeatureNames) == 0 {
		return ErrEmptyMetadata
	}
	if len(m.FeatureNames) != len(m.ScalerMean) || len(m.FeatureNames) != len(m.ScalerScale) {
		return ErrMetadataLengthMismatch
	}
	return nil
}

// ConfidenceBand discretizes distance from the deployment threshold.
type ConfidenceBand string

const (
	BandHigh         ConfidenceBand = "HIGH"
	BandMedium       ConfidenceBand = "MEDIUM"
	BandLow          ConfidenceBand = "LOW"
	BandInconclusive ConfidenceBand = "INCONCLUSIVE"
)

// RiskAssessmentResult is the immutable outcome of one analysis call.
type RiskAssessmentResult struct {
	Address              string         `json:"address"`
	ChainType            ChainType      `json:"chain_type"`
	Probability          float64        `json:"probability"`
	Verdict              bool           `json:"verdict"`
	ConfidenceBand       ConfidenceBand `json:"confidence_band"`
	ConfidenceScore      float64        `json:"confidence_score"`
	ThresholdUsed        float64        `json:"threshold_used"`
	TransactionsAnalyzed uint32         `json:"transactions_analyzed"`
	DataSource           string         `json:"data_source"`
	// UserTier is reporting metadata computed for ledger analyses only.
	UserTier string `json:"user_tier,omitempty"`
}
