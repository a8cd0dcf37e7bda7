package features

import (
	"github.com/sigilum/chainrisk/internal/models"
)

// ComputeEthereum aggregates normalized Ethereum transfers (native and token
// legs, already valued in the common unit) into the named feature map the
// Ethereum model was trained on. Unlike the Bitcoin variant the schema ends
// at the aggregate layer; the Ethereum model carries no second-pass pattern
// features. Counting conventions:
//   - total_txs counts value-bearing legs, not raw records
//   - fees accrue once per transaction the address initiated, including
//     zero-value ones
//   - transacted_w_address_total is the distinct counterparty count
func ComputeEthereum(transfers []models.NormalizedTransfer) FeatureMap {
	m := FeatureMap{}

	var (
		blocks         []uint64
		sentBlocks     []uint64
		receivedBlocks []uint64
		sentValues     []float64
		receivedValues []float64
		allValues      []float64
		allFees        []float64
		feeShares      []float64
	)
	counterparties := map[string]int{}

	prevTxID := ""
	for _, t := range transfers {
		if t.TxID != prevTxID {
			prevTxID = t.TxID
			if t.BlockOrdinal > 0 {
				blocks = append(blocks, t.BlockOrdinal)
			}
		}

		switch t.Direction {
		case models.DirectionSent:
			allFees = append(allFees, t.FeeCommonUnit)
			sentValues = append(sentValues, t.ValueCommonUnit)
			allValues = append(allValues, t.ValueCommonUnit)
			if t.BlockOrdinal > 0 {
				sentBlocks = append(sentBlocks, t.BlockOrdinal)
			}
			if t.ValueCommonUnit > 0 {
				feeShares = append(feeShares, t.FeeCommonUnit/t.ValueCommonUnit*100)
			}
			if t.Counterparty != "" {
				counterparties[t.Counterparty]++
			}
		case models.DirectionReceived:
			receivedValues = append(receivedValues, t.ValueCommonUnit)
			allValues = append(allValues, t.ValueCommonUnit)
			if t.BlockOrdinal > 0 {
				receivedBlocks = append(receivedBlocks, t.BlockOrdinal)
			}
			if t.Counterparty != "" {
				counterparties[t.Counterparty]++
			}
		case models.DirectionFeeOnly:
			allFees = append(allFees, t.FeeCommonUnit)
		}
	}

	m["num_txs_as_sender"] = float64(len(sentValues))
	m["num_txs_as_receiver"] = float64(len(receivedValues))
	m["total_txs"] = float64(len(sentValues) + len(receivedValues))

	if len(blocks) > 0 {
		minB, maxB := minMaxU64(blocks)
		m["first_block_appeared_in"] = float64(minB)
		m["last_block_appeared_in"] = float64(maxB)
		m["lifetime_in_blocks"] = float64(maxB - minB)
		m["num_timesteps_appeared_in"] = float64(distinctU64(blocks))
	} else {
		m["first_block_appeared_in"] = 0
		m["last_block_appeared_in"] = 0
		m["lifetime_in_blocks"] = 0
		m["num_timesteps_appeared_in"] = 0
	}

	m["first_sent_block"] = minOrZero(sentBlocks)
	m["first_received_block"] = minOrZero(receivedBlocks)

	m.AddStats("btc_transacted", allValues, true)
	m.AddStats("btc_sent", sentValues, true)
	m.AddStats("btc_received", receivedValues, true)
	m.AddStats("fees", allFees, true)
	m.AddStats("fees_as_share", feeShares, true)

	m.AddIntervalStats("blocks_btwn_txs", blocks)
	m.AddIntervalStats("blocks_btwn_input_txs", sentBlocks)
	m.AddIntervalStats("blocks_btwn_output_txs", receivedBlocks)

	counts := make([]float64, 0, len(counterparties))
	multiple := 0.0
	for _, c := range counterparties {
		counts = append(counts, float64(c))
		if c > 1 {
			multiple++
		}
	}
	m.AddStats("transacted_w_address", counts, false)
	m["transacted_w_address_total"] = float64(len(counterparties))
	m["num_addr_transacted_multiple"] = multiple

	return m
}

func minOrZero(values []uint64) float64 {
	if len(values) == 0 {
		return 0
	}
	minV, _ := minMaxU64(values)
	return float64(minV)
}
