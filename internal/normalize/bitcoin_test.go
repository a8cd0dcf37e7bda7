package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigilum/chainrisk/internal/models"
)

func TestNormalizeBitcoinSentAndReceived(t *testing.T) {
	txs := []models.MempoolTx{
		{
			TxID: "tx1",
			Fee:  1000,
			Status: models.MempoolTxStatus{Confirmed: true, BlockHeight: 800000, BlockTime: 1690000000},
			Vin: []models.MempoolVin{
				{Prevout: &models.MempoolVout{Address: "addr1", Value: 50_000_000}},
			},
			Vout: []models.MempoolVout{
				{Address: "peer1", Value: 49_000_000},
				{Address: "addr1", Value: 999_000},
			},
		},
	}

	legs := NormalizeBitcoin("addr1", txs)
	require.Len(t, legs, 2)

	sent := legs[0]
	assert.Equal(t, models.DirectionSent, sent.Direction)
	assert.InDelta(t, 0.5, sent.ValueCommonUnit, 1e-12)
	assert.InDelta(t, 0.00001, sent.FeeCommonUnit, 1e-12)
	assert.Equal(t, uint64(800000), sent.BlockOrdinal)
	assert.Equal(t, []string{"peer1"}, sent.ExtraCounterparties)

	recv := legs[1]
	assert.Equal(t, models.DirectionReceived, recv.Direction)
	assert.InDelta(t, 0.00999, recv.ValueCommonUnit, 1e-12)
	assert.Zero(t, recv.FeeCommonUnit, "fee rides on the first leg only")
	assert.Nil(t, recv.ExtraCounterparties)
}

func TestNormalizeBitcoinUnconfirmedSkipped(t *testing.T) {
	txs := []models.MempoolTx{
		{TxID: "pending", Status: models.MempoolTxStatus{Confirmed: false}},
	}
	assert.Empty(t, NormalizeBitcoin("addr1", txs))
}

func TestNormalizeBitcoinReceiveOnly(t *testing.T) {
	txs := []models.MempoolTx{
		{
			TxID:   "tx2",
			Fee:    500,
			Status: models.MempoolTxStatus{Confirmed: true, BlockHeight: 800010, BlockTime: 1690001000},
			Vin: []models.MempoolVin{
				{Prevout: &models.MempoolVout{Address: "sender", Value: 200_000_000}},
			},
			Vout: []models.MempoolVout{
				{Address: "addr1", Value: 100_000_000},
				{Address: "change", Value: 99_999_500},
			},
		},
	}

	legs := NormalizeBitcoin("addr1", txs)
	require.Len(t, legs, 1)
	assert.Equal(t, models.DirectionReceived, legs[0].Direction)
	assert.InDelta(t, 1.0, legs[0].ValueCommonUnit, 1e-12)
	assert.ElementsMatch(t, []string{"sender", "change"}, legs[0].ExtraCounterparties)
}

func TestNormalizeBitcoinObservedLegCarriesFee(t *testing.T) {
	txs := []models.MempoolTx{
		{
			TxID:   "tx3",
			Fee:    2000,
			Status: models.MempoolTxStatus{Confirmed: true, BlockHeight: 800020, BlockTime: 1690002000},
			Vout: []models.MempoolVout{
				{Address: "addr1", Value: 0},
				{Address: "other", Value: 100},
			},
		},
	}

	legs := NormalizeBitcoin("addr1", txs)
	require.Len(t, legs, 1)
	assert.Equal(t, models.DirectionObserved, legs[0].Direction)
	assert.InDelta(t, 0.00002, legs[0].FeeCommonUnit, 1e-12)
}
