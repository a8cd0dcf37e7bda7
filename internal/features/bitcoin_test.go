package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigilum/chainrisk/internal/models"
)

func btcFixture() []models.NormalizedTransfer {
	ts := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	return []models.NormalizedTransfer{
		{
			TxID:                "tx-a",
			Timestamp:           ts,
			BlockOrdinal:        800000,
			Direction:           models.DirectionSent,
			ValueCommonUnit:     1.0,
			FeeCommonUnit:       0.01,
			ExtraCounterparties: []string{"bc1qpeer1", "bc1qchange"},
		},
		{
			TxID:                "tx-b",
			Timestamp:           ts,
			BlockOrdinal:        800000,
			Direction:           models.DirectionReceived,
			ValueCommonUnit:     2.0,
			ExtraCounterparties: []string{"bc1qpeer1"},
		},
	}
}

func TestComputeBitcoinEndToEndScenario(t *testing.T) {
	m := ComputeBitcoin(btcFixture())

	assert.Equal(t, 1.0, m["num_txs_as_sender"])
	assert.Equal(t, 1.0, m["num_txs_as_receiver"])
	assert.Equal(t, 2.0, m["total_txs"])
	assert.Equal(t, 1.0, m["btc_sent_total"])
	assert.Equal(t, 2.0, m["btc_received_total"])
	assert.Equal(t, 3.0, m["btc_transacted_total"])
	assert.InDelta(t, -0.333, m["flow_imbalance"], 0.001)

	// Both transactions are in one block.
	assert.Equal(t, 1.0, m["Time step"])
	assert.Equal(t, 1.0, m["num_timesteps_appeared_in"])
	assert.Equal(t, 0.0, m["lifetime_in_blocks"])

	// bc1qpeer1 touched twice, bc1qchange once.
	assert.Equal(t, 3.0, m["transacted_w_address_total"])
	assert.Equal(t, 1.0, m["num_addr_transacted_multiple"])
}

func TestComputeBitcoinOrderIndependence(t *testing.T) {
	forward := btcFixture()
	reversed := []models.NormalizedTransfer{forward[1], forward[0]}

	a := ComputeBitcoin(forward)
	b := ComputeBitcoin(reversed)

	require.Equal(t, len(a), len(b))
	for key, v := range a {
		assert.InDelta(t, v, b[key], 1e-12, "feature %s differs across input order", key)
	}
}

func TestComputeBitcoinInterleavedLegs(t *testing.T) {
	aSent := models.NormalizedTransfer{
		TxID: "tx-a", BlockOrdinal: 800000, Direction: models.DirectionSent,
		ValueCommonUnit: 1.0, FeeCommonUnit: 0.01,
		ExtraCounterparties: []string{"bc1qpeer1"},
	}
	aChange := models.NormalizedTransfer{
		TxID: "tx-a", BlockOrdinal: 800000, Direction: models.DirectionReceived,
		ValueCommonUnit: 0.5,
	}
	bRecv := models.NormalizedTransfer{
		TxID: "tx-b", BlockOrdinal: 800002, Direction: models.DirectionReceived,
		ValueCommonUnit: 2.0, ExtraCounterparties: []string{"bc1qpeer1"},
	}

	grouped := ComputeBitcoin([]models.NormalizedTransfer{aSent, aChange, bRecv})
	interleaved := ComputeBitcoin([]models.NormalizedTransfer{aSent, bRecv, aChange})

	assert.Equal(t, 2.0, grouped["total_txs"])
	assert.Equal(t, 2.0, interleaved["total_txs"])
	assert.Equal(t, grouped["fees_total"], interleaved["fees_total"])
	assert.Equal(t, grouped["transacted_w_address_total"], interleaved["transacted_w_address_total"])

	require.Equal(t, len(grouped), len(interleaved))
	for key, v := range grouped {
		assert.InDelta(t, v, interleaved[key], 1e-12, "feature %s differs when legs interleave", key)
	}
}

func TestComputeBitcoinEmptyInput(t *testing.T) {
	m := ComputeBitcoin(nil)

	assert.Equal(t, 0.0, m["total_txs"])
	assert.Equal(t, 0.0, m["btc_transacted_total"])
	assert.False(t, m.HasNonFinite())

	// Derived ratios stay finite on an empty history.
	assert.Equal(t, 0.0, m["flow_imbalance"])
	assert.Equal(t, 0.0, m["mixing_intensity"])
}

func TestComputeBitcoinFeeOnlyTransactionCountsFee(t *testing.T) {
	m := ComputeBitcoin([]models.NormalizedTransfer{
		{TxID: "tx-c", BlockOrdinal: 800123, Direction: models.DirectionFeeOnly, FeeCommonUnit: 0.0005},
	})

	assert.Equal(t, 1.0, m["total_txs"])
	assert.Equal(t, 0.0005, m["fees_total"])
	assert.Equal(t, 0.0, m["num_txs_as_sender"])
}

func TestComputeBitcoinIntervalStats(t *testing.T) {
	m := ComputeBitcoin([]models.NormalizedTransfer{
		{TxID: "t1", BlockOrdinal: 100, Direction: models.DirectionSent, ValueCommonUnit: 1},
		{TxID: "t2", BlockOrdinal: 110, Direction: models.DirectionSent, ValueCommonUnit: 1},
		{TxID: "t3", BlockOrdinal: 140, Direction: models.DirectionSent, ValueCommonUnit: 1},
	})

	assert.Equal(t, 40.0, m["blocks_btwn_txs_total"])
	assert.Equal(t, 10.0, m["blocks_btwn_txs_min"])
	assert.Equal(t, 30.0, m["blocks_btwn_txs_max"])
	assert.Equal(t, 20.0, m["blocks_btwn_txs_median"])
	assert.Equal(t, 40.0, m["blocks_btwn_input_txs_total"])
	assert.Equal(t, 0.0, m["blocks_btwn_output_txs_total"])
}
