package normalize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigilum/chainrisk/internal/models"
)

func TestNormalizeLedgerTransferPricing(t *testing.T) {
	conv := testConverter(priceTable{"ICP": 5.0, "BTC": 50000.0})
	n := NewLedgerNormalizer(conv, testNormLogger())

	txs := []models.LedgerTx{
		{
			Type: models.LedgerTransfer, TimestampNanos: 1_700_000_000_000_000_000,
			BlockIndex: 10, From: "me-principal", To: "peer-principal",
			Amount: 2.0, IsOutgoing: true, TokenSymbol: "ICP",
		},
		{
			Type: models.LedgerTransfer, TimestampNanos: 1_700_000_100_000_000_000,
			BlockIndex: 11, From: "peer-principal", To: "me-principal",
			Amount: 0.001, IsIncoming: true, TokenSymbol: "ckBTC",
		},
	}

	acts := n.Normalize(context.Background(), "me-principal", txs)
	require.Len(t, acts, 2)

	assert.Equal(t, "peer-principal", acts[0].Counterparty)
	assert.True(t, acts[0].IsOutgoing)
	assert.InDelta(t, 10.0, acts[0].USDValue, 1e-9)
	assert.InDelta(t, 2.0, acts[0].ICPValue, 1e-9)

	assert.Equal(t, "peer-principal", acts[1].Counterparty)
	assert.InDelta(t, 50.0, acts[1].USDValue, 1e-9)
	assert.InDelta(t, 10.0, acts[1].ICPValue, 1e-9)
}

func TestNormalizeLedgerMintGetsSystemCounterparty(t *testing.T) {
	conv := testConverter(priceTable{"ICP": 5.0})
	n := NewLedgerNormalizer(conv, testNormLogger())

	txs := []models.LedgerTx{
		{
			Type: models.LedgerMint, TimestampNanos: 1_700_000_000_000_000_000,
			To: "me-principal", Amount: 1.0, IsIncoming: true, TokenSymbol: "ICP",
		},
	}

	acts := n.Normalize(context.Background(), "me-principal", txs)
	require.Len(t, acts, 1)
	assert.Equal(t, models.LedgerSystemAccount, acts[0].Counterparty)
}

func TestNormalizeLedgerUnpriceableTokenKeptAtZero(t *testing.T) {
	conv := testConverter(nil)
	n := NewLedgerNormalizer(conv, testNormLogger())

	txs := []models.LedgerTx{
		{
			Type: models.LedgerTransfer, TimestampNanos: 1_700_000_000_000_000_000,
			From: "me-principal", To: "peer-principal",
			Amount: 3.0, IsOutgoing: true, TokenSymbol: "ICP",
		},
		// No timestamp, dropped.
		{Type: models.LedgerTransfer, Amount: 1.0, TokenSymbol: "ICP"},
	}

	acts := n.Normalize(context.Background(), "me-principal", txs)
	require.Len(t, acts, 1)
	assert.Equal(t, 0.0, acts[0].USDValue)
	assert.Equal(t, 0.0, acts[0].ICPValue)
}
