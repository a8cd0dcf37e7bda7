package features

import (
	"github.com/sigilum/chainrisk/internal/models"
)

// ComputeBitcoin aggregates normalized Bitcoin transfers into the named
// feature map the Bitcoin model was trained on. The fee, block height, and
// counterparty touches of a transaction ride on its first leg; legs of one
// transaction may arrive in any order relative to other transactions.
func ComputeBitcoin(transfers []models.NormalizedTransfer) FeatureMap {
	m := FeatureMap{}

	var (
		blockHeights   []uint64
		sentBlocks     []uint64
		receivedBlocks []uint64
		sentValues     []float64
		receivedValues []float64
		allValues      []float64
		allFees        []float64
	)
	interactions := map[string]int{}

	seenTx := map[string]bool{}
	for _, t := range transfers {
		if !seenTx[t.TxID] {
			seenTx[t.TxID] = true
			if t.BlockOrdinal > 0 {
				blockHeights = append(blockHeights, t.BlockOrdinal)
			}
			allFees = append(allFees, t.FeeCommonUnit)
			for _, cp := range t.ExtraCounterparties {
				interactions[cp]++
			}
		}

		switch t.Direction {
		case models.DirectionSent:
			sentValues = append(sentValues, t.ValueCommonUnit)
			allValues = append(allValues, t.ValueCommonUnit)
			if t.BlockOrdinal > 0 {
				sentBlocks = append(sentBlocks, t.BlockOrdinal)
			}
		case models.DirectionReceived:
			receivedValues = append(receivedValues, t.ValueCommonUnit)
			allValues = append(allValues, t.ValueCommonUnit)
			if t.BlockOrdinal > 0 {
				receivedBlocks = append(receivedBlocks, t.BlockOrdinal)
			}
		}
	}

	m["num_txs_as_sender"] = float64(len(sentValues))
	m["num_txs_as_receiver"] = float64(len(receivedValues))
	m["total_txs"] = float64(len(seenTx))

	if len(blockHeights) > 0 {
		minB, maxB := minMaxU64(blockHeights)
		m["first_block_appeared_in"] = float64(minB)
		m["last_block_appeared_in"] = float64(maxB)
		m["lifetime_in_blocks"] = float64(maxB - minB)
		m["num_timesteps_appeared_in"] = float64(distinctU64(blockHeights))
	}
	if len(sentBlocks) > 0 {
		minB, _ := minMaxU64(sentBlocks)
		m["first_sent_block"] = float64(minB)
	}
	if len(receivedBlocks) > 0 {
		minB, _ := minMaxU64(receivedBlocks)
		m["first_received_block"] = float64(minB)
	}

	m.AddStats("btc_transacted", allValues, true)
	m.AddStats("btc_sent", sentValues, true)
	m.AddStats("btc_received", receivedValues, true)
	m.AddStats("fees", allFees, true)

	// Fee shares pair the per-transaction fee list with the per-leg value
	// list positionally, stopping at the shorter. This mirrors how the
	// training data was generated, so it stays even though the pairing is
	// not per-transaction exact.
	var feeShares []float64
	for i := 0; i < len(allFees) && i < len(allValues); i++ {
		if allValues[i] > 0 {
			feeShares = append(feeShares, allFees[i]/allValues[i]*100)
		}
	}
	m.AddStats("fees_as_share", feeShares, true)

	m.AddStats("blocks_btwn_txs", Intervals(blockHeights, false), true)
	m.AddStats("blocks_btwn_input_txs", Intervals(sentBlocks, false), true)
	m.AddStats("blocks_btwn_output_txs", Intervals(receivedBlocks, false), true)

	counts := make([]float64, 0, len(interactions))
	multiple := 0.0
	for _, c := range interactions {
		counts = append(counts, float64(c))
		if c > 1 {
			multiple++
		}
	}
	m.AddStats("transacted_w_address", counts, true)
	m["num_addr_transacted_multiple"] = multiple

	m["Time step"] = float64(distinctU64(blockHeights))

	addDerivedPatterns(m)
	return m
}

// addDerivedPatterns is the second-pass ratio layer computed from aggregate
// values only. Count-like denominators replace zero with one; the rest carry
// an additive epsilon. Formulas are contracts frozen by the trained model.
func addDerivedPatterns(m FeatureMap) {
	partnerTotal := m["transacted_w_address_total"]
	totalTxs := m["total_txs"]
	lifetime := nonZero(m["lifetime_in_blocks"])
	transactedMean := nonZero(m["btc_transacted_mean"])
	transactedTotal := nonZero(m["btc_transacted_total"])
	timesteps := nonZero(m["num_timesteps_appeared_in"])

	partnerRatio := safeDiv(partnerTotal, totalTxs)
	activityDensity := safeDiv(totalTxs, lifetime)
	interactionIntensity := safeDiv(m["num_addr_transacted_multiple"], partnerTotal)

	m["partner_transaction_ratio"] = partnerRatio
	m["activity_density"] = activityDensity
	m["transaction_size_variance"] = safeDiv(m["btc_transacted_max"]-m["btc_transacted_min"], transactedMean)
	m["flow_imbalance"] = safeDiv(m["btc_sent_total"]-m["btc_received_total"], transactedTotal)
	m["temporal_spread"] = safeDiv(m["last_block_appeared_in"]-m["first_block_appeared_in"], timesteps)
	m["fee_percentile"] = safeDiv(m["fees_total"], transactedTotal)
	m["interaction_intensity"] = interactionIntensity
	m["value_per_transaction"] = safeDiv(m["btc_transacted_total"], totalTxs)
	m["burst_activity"] = totalTxs * activityDensity
	m["mixing_intensity"] = partnerRatio * interactionIntensity
}

func minMaxU64(values []uint64) (uint64, uint64) {
	minV, maxV := values[0], values[0]
	for _, v := range values {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	return minV, maxV
}

func distinctU64(values []uint64) int {
	seen := make(map[uint64]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
