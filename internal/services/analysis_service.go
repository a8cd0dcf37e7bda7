package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sigilum/chainrisk/internal/chain"
	"github.com/sigilum/chainrisk/internal/database"
	"github.com/sigilum/chainrisk/internal/features"
	"github.com/sigilum/chainrisk/internal/inference"
	"github.com/sigilum/chainrisk/internal/logging"
	"github.com/sigilum/chainrisk/internal/models"
	"github.com/sigilum/chainrisk/internal/normalize"
	"github.com/sigilum/chainrisk/internal/pricing"
	"github.com/sigilum/chainrisk/internal/risk"
)

// ErrUnrecognizedAddress indicates an address matching no known chain shape.
var ErrUnrecognizedAddress = errors.New("address matches no supported chain")

// Data source labels reported back to the caller.
const (
	sourceBitcoin  = "mempool.space"
	sourceEthereum = "Etherscan"
	sourceSolana   = "Helius"
	sourceLedger   = "ICP Ledger"
)

// Per-chain transaction fetchers. Interfaces so tests can substitute fakes
// for the HTTP ingestors.
type BitcoinFetcher interface {
	FetchAll(ctx context.Context, address string) ([]models.MempoolTx, error)
}

type EthereumFetcher interface {
	FetchAll(ctx context.Context, address string) ([]models.EtherscanTx, error)
}

type SolanaFetcher interface {
	FetchAll(ctx context.Context, address string) ([]models.HeliusTx, error)
}

type LedgerFetcher interface {
	FetchAll(ctx context.Context, principal string) ([]models.LedgerTx, error)
	FetchBalances(ctx context.Context, principal string) ([]models.TokenBalance, error)
}

// Classifier is the per-chain inference engine surface the service needs.
type Classifier interface {
	Load(modelBytes []byte, meta *models.ModelMetadata) error
	Loaded() bool
	Metadata() *models.ModelMetadata
	Predict(vector []float64) (float64, error)
}

// AnalysisServiceDeps bundles the collaborators owned by the service.
type AnalysisServiceDeps struct {
	Bitcoin   BitcoinFetcher
	Ethereum  EthereumFetcher
	Solana    SolanaFetcher
	Ledger    LedgerFetcher
	Converter *pricing.Converter
	Engines   map[models.ChainType]Classifier
	Store     *ModelStore
	State     *database.StateRepository
	Logger    logging.Logger
}

// AnalysisService runs the full pipeline for one address: chain detection,
// ingestion, normalization, feature calculation, inference, and assessment.
// It also owns the model upload path and the persisted-state lifecycle.
type AnalysisService struct {
	bitcoin  BitcoinFetcher
	ethereum EthereumFetcher
	solana   SolanaFetcher
	ledger   LedgerFetcher

	ethNorm    *normalize.EthereumNormalizer
	solNorm    *normalize.SolanaNormalizer
	ledgerNorm *normalize.LedgerNormalizer

	converter *pricing.Converter
	engines   map[models.ChainType]Classifier
	store     *ModelStore
	state     *database.StateRepository
	logger    *slog.Logger
}

func NewAnalysisService(deps AnalysisServiceDeps) *AnalysisService {
	return &AnalysisService{
		bitcoin:    deps.Bitcoin,
		ethereum:   deps.Ethereum,
		solana:     deps.Solana,
		ledger:     deps.Ledger,
		ethNorm:    normalize.NewEthereumNormalizer(deps.Converter, deps.Logger),
		solNorm:    normalize.NewSolanaNormalizer(deps.Converter, deps.Logger),
		ledgerNorm: normalize.NewLedgerNormalizer(deps.Converter, deps.Logger),
		converter:  deps.Converter,
		engines:    deps.Engines,
		store:      deps.Store,
		state:      deps.State,
		logger:     deps.Logger.WithComponent("analysis_service"),
	}
}

// AnalyzeAddress scores one address. Data-quality problems never fail the
// call; they surface as an INCONCLUSIVE result. Hard errors are limited to
// an unrecognized address, an unloaded model, zero fetchable history with a
// non-benign cause, and inference failures.
func (s *AnalysisService) AnalyzeAddress(ctx context.Context, address string) (*models.RiskAssessmentResult, error) {
	chainType := chain.Detect(address)
	if chainType == models.ChainUnknown {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedAddress, address)
	}

	engine := s.engines[chainType]
	if engine == nil || !engine.Loaded() {
		return nil, fmt.Errorf("%s: %w", chainType, inference.ErrModelNotLoaded)
	}

	logger := s.logger.With("chain", string(chainType), "address", address)
	logger.Info("analysis started")

	var (
		result *models.RiskAssessmentResult
		err    error
	)
	switch chainType {
	case models.ChainBitcoin:
		result, err = s.analyzeBitcoin(ctx, address, engine)
	case models.ChainEthereum:
		result, err = s.analyzeEthereum(ctx, address, engine)
	case models.ChainSolana:
		result, err = s.analyzeSolana(ctx, address, engine)
	case models.ChainLedger:
		result, err = s.analyzeLedger(ctx, address, engine)
	}
	if err != nil {
		logger.Error("analysis failed", "error", err)
		return nil, err
	}

	logger.Info("analysis finished",
		"probability", result.Probability,
		"verdict", result.Verdict,
		"band", string(result.ConfidenceBand),
		"transactions", result.TransactionsAnalyzed)
	return result, nil
}

func (s *AnalysisService) analyzeBitcoin(ctx context.Context, address string, engine Classifier) (*models.RiskAssessmentResult, error) {
	txs, err := s.bitcoin.FetchAll(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("bitcoin ingestion: %w", err)
	}

	transfers := normalize.NormalizeBitcoin(address, txs)
	if len(transfers) == 0 {
		return risk.Inconclusive(address, models.ChainBitcoin, engine.Metadata().DeploymentThreshold, 0, sourceBitcoin), nil
	}
	return s.score(address, models.ChainBitcoin, sourceBitcoin, engine,
		features.ComputeBitcoin(transfers), len(transfers))
}

func (s *AnalysisService) analyzeEthereum(ctx context.Context, address string, engine Classifier) (*models.RiskAssessmentResult, error) {
	txs, err := s.ethereum.FetchAll(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("ethereum ingestion: %w", err)
	}

	transfers := s.ethNorm.Normalize(ctx, address, txs)
	if len(transfers) == 0 {
		return risk.Inconclusive(address, models.ChainEthereum, engine.Metadata().DeploymentThreshold, 0, sourceEthereum), nil
	}
	return s.score(address, models.ChainEthereum, sourceEthereum, engine,
		features.ComputeEthereum(transfers), len(transfers))
}

func (s *AnalysisService) analyzeSolana(ctx context.Context, address string, engine Classifier) (*models.RiskAssessmentResult, error) {
	txs, err := s.solana.FetchAll(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("solana ingestion: %w", err)
	}

	transfers := s.solNorm.Normalize(ctx, address, txs)
	if len(transfers) == 0 {
		return risk.Inconclusive(address, models.ChainSolana, engine.Metadata().DeploymentThreshold, 0, sourceSolana), nil
	}
	return s.score(address, models.ChainSolana, sourceSolana, engine,
		features.ComputeSolana(transfers, len(txs)), len(transfers))
}

func (s *AnalysisService) analyzeLedger(ctx context.Context, principal string, engine Classifier) (*models.RiskAssessmentResult, error) {
	var (
		txs      []models.LedgerTx
		balances []models.TokenBalance
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.ledger.FetchAll(gctx, principal)
		if err != nil {
			return fmt.Errorf("ledger ingestion: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		fetched, err := s.ledger.FetchBalances(gctx, principal)
		if err != nil {
			// Balances enrich the portfolio features but their absence
			// does not invalidate the operation history.
			s.logger.Warn("ledger balances unavailable", "principal", principal, "error", err)
			return nil
		}
		balances = fetched
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	activity := s.ledgerNorm.Normalize(ctx, principal, txs)
	threshold := engine.Metadata().DeploymentThreshold
	if len(activity) == 0 && len(balances) == 0 {
		return risk.Inconclusive(principal, models.ChainLedger, threshold, 0, sourceLedger), nil
	}

	hasMint, hasBurn := false, false
	for _, a := range activity {
		switch a.Type {
		case models.LedgerMint:
			hasMint = true
		case models.LedgerBurn:
			hasBurn = true
		}
	}

	featureMap := features.ComputeLedger(balances, activity)
	result, err := s.score(principal, models.ChainLedger, sourceLedger, engine, featureMap, len(activity))
	if err != nil {
		return nil, err
	}
	result.UserTier = features.LedgerUserTier(featureMap, hasMint, hasBurn)
	return result, nil
}

// score runs the model side of the pipeline shared by every chain: the
// non-finite gate, the feature projection, scaling, and assessment. The
// caller has already handled the empty-history case.
func (s *AnalysisService) score(address string, chainType models.ChainType, dataSource string, engine Classifier, featureMap features.FeatureMap, transferCount int) (*models.RiskAssessmentResult, error) {
	meta := engine.Metadata()
	analyzed := uint32(transferCount)

	if featureMap.HasNonFinite() {
		s.logger.Warn("non-finite feature value", "chain", string(chainType), "address", address)
		return risk.Inconclusive(address, chainType, meta.DeploymentThreshold, analyzed, dataSource), nil
	}

	vector := inference.Vectorize(featureMap, meta.FeatureNames)
	probability, err := engine.Predict(vector)
	if err != nil {
		return nil, fmt.Errorf("%s inference: %w", chainType, err)
	}

	return risk.Assess(address, chainType, probability, meta.DeploymentThreshold, analyzed, dataSource), nil
}

// HandleModelChunk feeds one uploaded chunk to the store. When the chunk
// completes an upload the assembled model is loaded into the chain's engine
// and persisted. A failed load clears the upload so it can be retried.
func (s *AnalysisService) HandleModelChunk(ctx context.Context, chainType models.ChainType, chunkID, totalChunks int, data, metadata []byte) (string, error) {
	engine := s.engines[chainType]
	if engine == nil {
		return "", fmt.Errorf("%w: %q", ErrUnrecognizedAddress, string(chainType))
	}

	assembled, err := s.store.AddChunk(chainType, chunkID, totalChunks, data, metadata)
	if err != nil {
		return "", err
	}
	if assembled == nil {
		return s.store.Phase(chainType), nil
	}

	if err := engine.Load(assembled.Bytes, assembled.Metadata); err != nil {
		s.store.Reset(chainType)
		return "", fmt.Errorf("%s model load: %w", chainType, err)
	}
	if s.state != nil {
		if err := s.state.SaveModel(ctx, chainType, assembled.Metadata, assembled.Bytes); err != nil {
			s.logger.Error("model persisted state save failed", "chain", string(chainType), "error", err)
		}
	}
	return s.store.Phase(chainType), nil
}

// RestoreState reloads persisted models and the price cache snapshot. A
// single corrupt artifact is logged and skipped; the repository being
// unreachable is an error.
func (s *AnalysisService) RestoreState(ctx context.Context) error {
	if s.state == nil {
		return nil
	}

	stored, err := s.state.LoadModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range stored {
		engine := s.engines[m.Chain]
		if engine == nil {
			s.logger.Warn("persisted model for unsupported chain", "chain", string(m.Chain))
			continue
		}
		meta := m.Metadata
		if err := engine.Load(m.Artifact, &meta); err != nil {
			s.logger.Error("persisted model failed to load", "chain", string(m.Chain), "error", err)
		}
	}

	quotes, err := s.state.LoadPriceSnapshot(ctx)
	if err != nil {
		return err
	}
	if len(quotes) > 0 {
		s.converter.Oracle().RestoreQuotes(ctx, quotes)
		s.logger.Info("price cache restored", "quotes", len(quotes))
	}
	return nil
}

// PersistPriceSnapshot saves the oracle's current quote cache.
func (s *AnalysisService) PersistPriceSnapshot(ctx context.Context) error {
	if s.state == nil {
		return nil
	}
	return s.state.SavePriceSnapshot(ctx, s.converter.Oracle().Snapshot(ctx))
}

// ProviderHealth reports the oracle's per-provider health counters.
func (s *AnalysisService) ProviderHealth() []models.ProviderHealth {
	return s.converter.Oracle().ProviderHealth()
}

// QuoteCacheStats reports the durable price cache counters, when one runs.
func (s *AnalysisService) QuoteCacheStats() (pricing.QuoteCacheStats, bool) {
	return s.converter.Oracle().CacheStats()
}

// ModelsLoaded reports which chains currently hold a usable model.
func (s *AnalysisService) ModelsLoaded() map[string]bool {
	loaded := make(map[string]bool, len(s.engines))
	for chainType, engine := range s.engines {
		loaded[string(chainType)] = engine.Loaded()
	}
	return loaded
}
