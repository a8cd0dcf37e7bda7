package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigilum/chainrisk/internal/inference"
	"github.com/sigilum/chainrisk/internal/models"
	"github.com/sigilum/chainrisk/internal/pricing"
)

const (
	btcTestAddress    = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	ledgerTestAddress = "ryjl3-tyaaa-aaaaa-aaaba-cai"
)

// servicePriceTable answers quotes by the asset's cache key.
type servicePriceTable map[string]float64

func (p servicePriceTable) ID() string { return "table" }

func (p servicePriceTable) Quote(ctx context.Context, asset pricing.AssetRef, quote string, at time.Time) (float64, error) {
	if price, ok := p[asset.CacheKey()]; ok {
		return price, nil
	}
	return 0, pricing.ErrUnsupportedAsset
}

type fakeClassifier struct {
	meta        *models.ModelMetadata
	probability float64
	lastVector  []float64
	loadedBytes []byte
	loadErr     error
}

func (f *fakeClassifier) Load(modelBytes []byte, meta *models.ModelMetadata) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loadedBytes = modelBytes
	f.meta = meta
	return nil
}

func (f *fakeClassifier) Loaded() bool { return f.meta != nil }

func (f *fakeClassifier) Metadata() *models.ModelMetadata { return f.meta }

func (f *fakeClassifier) Predict(vector []float64) (float64, error) {
	f.lastVector = vector
	return f.probability, nil
}

type fakeBitcoinFetcher struct {
	txs []models.MempoolTx
	err error
}

func (f *fakeBitcoinFetcher) FetchAll(ctx context.Context, address string) ([]models.MempoolTx, error) {
	return f.txs, f.err
}

type fakeLedgerFetcher struct {
	txs      []models.LedgerTx
	balances []models.TokenBalance
}

func (f *fakeLedgerFetcher) FetchAll(ctx context.Context, principal string) ([]models.LedgerTx, error) {
	return f.txs, nil
}

func (f *fakeLedgerFetcher) FetchBalances(ctx context.Context, principal string) ([]models.TokenBalance, error) {
	return f.balances, nil
}

func scoringMetadata(names ...string) *models.ModelMetadata {
	meta := &models.ModelMetadata{
		FeatureNames:        names,
		DeploymentThreshold: 0.5,
	}
	meta.ScalerMean = make([]float64, len(names))
	meta.ScalerScale = make([]float64, len(names))
	for i := range names {
		meta.ScalerScale[i] = 1
	}
	return meta
}

func newTestService(deps AnalysisServiceDeps) *AnalysisService {
	logger := testServiceLogger()
	if deps.Converter == nil {
		oracle := pricing.NewOracle([]pricing.Provider{servicePriceTable{"ICP": 5.0}}, nil, logger)
		deps.Converter = pricing.NewConverter(oracle, nil)
	}
	if deps.Store == nil {
		deps.Store = NewModelStore(logger)
	}
	deps.Logger = logger
	return NewAnalysisService(deps)
}

func TestAnalyzeAddressBitcoin(t *testing.T) {
	classifier := &fakeClassifier{
		meta:        scoringMetadata("num_txs_as_receiver", "btc_received_total"),
		probability: 0.9,
	}
	fetcher := &fakeBitcoinFetcher{txs: []models.MempoolTx{
		{
			TxID: "tx1", Fee: 1000,
			Status: models.MempoolTxStatus{Confirmed: true, BlockHeight: 800000, BlockTime: 1_700_000_000},
			Vin: []models.MempoolVin{
				{Prevout: &models.MempoolVout{Address: "peer", Value: 300000000}},
			},
			Vout: []models.MempoolVout{
				{Address: btcTestAddress, Value: 200000000},
			},
		},
	}}
	svc := newTestService(AnalysisServiceDeps{
		Bitcoin: fetcher,
		Engines: map[models.ChainType]Classifier{models.ChainBitcoin: classifier},
	})

	result, err := svc.AnalyzeAddress(context.Background(), btcTestAddress)
	require.NoError(t, err)

	assert.Equal(t, models.ChainBitcoin, result.ChainType)
	assert.True(t, result.Verdict)
	assert.Equal(t, 0.9, result.Probability)
	assert.Equal(t, "mempool.space", result.DataSource)
	assert.Equal(t, uint32(1), result.TransactionsAnalyzed)
	// The vector follows the metadata's feature order.
	assert.Equal(t, []float64{1, 2.0}, classifier.lastVector)
}

func TestAnalyzeAddressUnrecognized(t *testing.T) {
	svc := newTestService(AnalysisServiceDeps{
		Engines: map[models.ChainType]Classifier{},
	})

	_, err := svc.AnalyzeAddress(context.Background(), "not an address")
	assert.ErrorIs(t, err, ErrUnrecognizedAddress)
}

func TestAnalyzeAddressModelNotLoaded(t *testing.T) {
	svc := newTestService(AnalysisServiceDeps{
		Bitcoin: &fakeBitcoinFetcher{},
		Engines: map[models.ChainType]Classifier{models.ChainBitcoin: &fakeClassifier{}},
	})

	_, err := svc.AnalyzeAddress(context.Background(), btcTestAddress)
	assert.ErrorIs(t, err, inference.ErrModelNotLoaded)
}

func TestAnalyzeAddressEmptyHistoryInconclusive(t *testing.T) {
	classifier := &fakeClassifier{meta: scoringMetadata("total_txs")}
	svc := newTestService(AnalysisServiceDeps{
		Bitcoin: &fakeBitcoinFetcher{},
		Engines: map[models.ChainType]Classifier{models.ChainBitcoin: classifier},
	})

	result, err := svc.AnalyzeAddress(context.Background(), btcTestAddress)
	require.NoError(t, err)

	assert.Equal(t, models.BandInconclusive, result.ConfidenceBand)
	assert.Equal(t, 0.0, result.Probability)
	assert.False(t, result.Verdict)
	assert.Equal(t, 0.5, result.ThresholdUsed)
	assert.Nil(t, classifier.lastVector)
}

func TestAnalyzeLedgerBalancesOnlyStillScores(t *testing.T) {
	classifier := &fakeClassifier{
		meta:        scoringMetadata("tokens_held_count"),
		probability: 0.2,
	}
	svc := newTestService(AnalysisServiceDeps{
		Ledger: &fakeLedgerFetcher{balances: []models.TokenBalance{
			{Symbol: "ICP", Amount: decimal.NewFromFloat(10), USDValue: 50},
		}},
		Engines: map[models.ChainType]Classifier{models.ChainLedger: classifier},
	})

	result, err := svc.AnalyzeAddress(context.Background(), ledgerTestAddress)
	require.NoError(t, err)

	assert.NotEqual(t, models.BandInconclusive, result.ConfidenceBand)
	assert.Equal(t, "ICP Ledger", result.DataSource)
	assert.NotNil(t, classifier.lastVector)

	// Tier metadata rides on every ledger result; no history means inactive.
	assert.Equal(t, "inactive", result.UserTier)
}

func TestAnalyzeLedgerReportsUserTier(t *testing.T) {
	classifier := &fakeClassifier{
		meta:        scoringMetadata("total_transactions"),
		probability: 0.2,
	}
	ts := uint64(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC).UnixNano())
	svc := newTestService(AnalysisServiceDeps{
		Ledger: &fakeLedgerFetcher{
			balances: []models.TokenBalance{
				{Symbol: "ICP", Amount: decimal.NewFromFloat(400), USDValue: 2000},
			},
			txs: []models.LedgerTx{
				{Type: models.LedgerTransfer, TokenSymbol: "ICP", From: ledgerTestAddress, To: "peer-1", Amount: 2, IsOutgoing: true, TimestampNanos: ts},
			},
		},
		Engines: map[models.ChainType]Classifier{models.ChainLedger: classifier},
	})

	result, err := svc.AnalyzeAddress(context.Background(), ledgerTestAddress)
	require.NoError(t, err)
	assert.Equal(t, "regular_investor", result.UserTier)
}

func TestAnalyzeLedgerNoDataInconclusive(t *testing.T) {
	classifier := &fakeClassifier{meta: scoringMetadata("tokens_held_count")}
	svc := newTestService(AnalysisServiceDeps{
		Ledger:  &fakeLedgerFetcher{},
		Engines: map[models.ChainType]Classifier{models.ChainLedger: classifier},
	})

	result, err := svc.AnalyzeAddress(context.Background(), ledgerTestAddress)
	require.NoError(t, err)
	assert.Equal(t, models.BandInconclusive, result.ConfidenceBand)
}

func TestHandleModelChunkLoadsEngine(t *testing.T) {
	classifier := &fakeClassifier{}
	svc := newTestService(AnalysisServiceDeps{
		Engines: map[models.ChainType]Classifier{models.ChainBitcoin: classifier},
	})

	phase, err := svc.HandleModelChunk(context.Background(), models.ChainBitcoin, 0, 2, []byte("AA"), testMetadataJSON)
	require.NoError(t, err)
	assert.Equal(t, "accumulating", phase)

	phase, err = svc.HandleModelChunk(context.Background(), models.ChainBitcoin, 1, 2, []byte("BB"), nil)
	require.NoError(t, err)
	assert.Equal(t, "loaded", phase)
	assert.Equal(t, []byte("AABB"), classifier.loadedBytes)
	assert.True(t, classifier.Loaded())
}

func TestHandleModelChunkLoadFailureResets(t *testing.T) {
	classifier := &fakeClassifier{loadErr: assert.AnError}
	svc := newTestService(AnalysisServiceDeps{
		Engines: map[models.ChainType]Classifier{models.ChainBitcoin: classifier},
	})

	_, err := svc.HandleModelChunk(context.Background(), models.ChainBitcoin, 0, 1, []byte("AA"), testMetadataJSON)
	assert.Error(t, err)
	assert.Equal(t, "empty", svc.store.Phase(models.ChainBitcoin))
}
