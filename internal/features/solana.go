package features

import (
	"fmt"
	"strings"

	"github.com/sigilum/chainrisk/internal/models"
)

// Complexity weight per transaction context, frozen by the trained model.
var contextComplexity = map[models.TxContext]float64{
	models.ContextPureTransfer: 1.0,
	models.ContextDexSwap:      3.0,
	models.ContextLending:      2.5,
	models.ContextStaking:      2.0,
	models.ContextOtherProgram: 2.0,
}

// ComputeSolana aggregates normalized Solana transfer legs into the named
// feature map the Solana model was trained on. rawTxCount is the number of
// raw transactions the legs were parsed from; several ratios are normalized
// by it rather than by the leg count. Counterparties that are known programs
// arrive with an empty Counterparty field and are excluded from relationship
// features by construction.
func ComputeSolana(transfers []models.NormalizedTransfer, rawTxCount int) FeatureMap {
	m := FeatureMap{}

	var (
		slots          []uint64
		sentSlots      []uint64
		receivedSlots  []uint64
		sentValues     []float64
		sentNative     []float64
		receivedValues []float64
		receivedNative []float64
		allValues      []float64
		allFees        []float64
		feeShares      []float64
		complexities   []float64
	)
	counterparties := map[string]int{}
	contextCounts := map[models.TxContext]int{}
	uniqueTokens := map[string]struct{}{}

	failedTxs := 0
	solTxs := 0
	tokenTxs := 0
	dexTxs := 0
	lendingTxs := 0
	stakingTxs := 0
	programmaticTxs := 0
	priceFailures := 0
	accountCreationCosts := 0.0

	for _, t := range transfers {
		allValues = append(allValues, t.ValueCommonUnit)
		if t.BlockOrdinal > 0 {
			slots = append(slots, t.BlockOrdinal)
		}

		switch {
		case t.Failed:
			failedTxs++
		case t.IsToken:
			tokenTxs++
			uniqueTokens[t.AssetID] = struct{}{}
			if t.PriceFetchFailed {
				priceFailures++
			}
		case t.Direction == models.DirectionSent || t.Direction == models.DirectionReceived:
			solTxs++
		}

		contextCounts[t.Context]++
		switch t.Context {
		case models.ContextDexSwap:
			dexTxs++
		case models.ContextLending:
			lendingTxs++
		case models.ContextStaking:
			stakingTxs++
		}
		if t.Programmatic {
			programmaticTxs++
		}
		if t.FeeNative > 0.002 {
			accountCreationCosts += t.FeeNative
		}

		if t.Direction == models.DirectionSent && t.ValueCommonUnit > 0 {
			sentValues = append(sentValues, t.ValueCommonUnit)
			sentNative = append(sentNative, t.ValueNative)
			allFees = append(allFees, t.FeeCommonUnit)
			feeShares = append(feeShares, t.FeeCommonUnit/t.ValueCommonUnit*100)
			complexities = append(complexities, contextWeight(t.Context))
			if t.BlockOrdinal > 0 {
				sentSlots = append(sentSlots, t.BlockOrdinal)
			}
			if t.Counterparty != "" {
				counterparties[t.Counterparty]++
			}
		}
		if t.Direction == models.DirectionReceived && t.ValueCommonUnit > 0 {
			receivedValues = append(receivedValues, t.ValueCommonUnit)
			receivedNative = append(receivedNative, t.ValueNative)
			complexities = append(complexities, contextWeight(t.Context))
			if t.BlockOrdinal > 0 {
				receivedSlots = append(receivedSlots, t.BlockOrdinal)
			}
			if t.Counterparty != "" {
				counterparties[t.Counterparty]++
			}
		}
	}

	totalTxs := float64(rawTxCount)
	m["num_txs_as_sender"] = float64(len(sentValues))
	m["num_txs_as_receiver"] = float64(len(receivedValues))
	m["total_txs"] = totalTxs

	m["failed_txs"] = float64(failedTxs)
	m["success_rate"] = ratioOrZero(totalTxs-float64(failedTxs), totalTxs)
	m["sol_txs"] = float64(solTxs)
	m["token_txs"] = float64(tokenTxs)
	m["unique_tokens_transacted"] = float64(len(uniqueTokens))
	m["sol_to_token_ratio"] = safeDiv(float64(solTxs), float64(tokenTxs))

	m["dex_swap_txs"] = float64(dexTxs)
	m["lending_txs"] = float64(lendingTxs)
	m["staking_txs"] = float64(stakingTxs)
	m["programmatic_txs"] = float64(programmaticTxs)
	m["programmatic_ratio"] = ratioOrZero(float64(programmaticTxs), totalTxs)

	defiTxs := float64(dexTxs + lendingTxs + stakingTxs)
	m["defi_txs_total"] = defiTxs
	m["defi_ratio"] = ratioOrZero(defiTxs, totalTxs)
	m["dex_to_total_ratio"] = ratioOrZero(float64(dexTxs), totalTxs)

	m["price_fetch_failures"] = float64(priceFailures)
	m["price_fetch_success_rate"] = ratioOrZero(totalTxs-float64(priceFailures), totalTxs)
	m["account_creation_costs_sol"] = accountCreationCosts

	m["transaction_context_diversity"] = float64(len(contextCounts))
	maxContext := 0
	for _, c := range contextCounts {
		if c > maxContext {
			maxContext = c
		}
	}
	m["most_common_context_ratio"] = ratioOrZero(float64(maxContext), totalTxs)

	if len(slots) > 0 {
		minS, maxS := minMaxU64(slots)
		lifetime := float64(maxS - minS)
		m["first_slot_appeared_in"] = float64(minS)
		m["last_slot_appeared_in"] = float64(maxS)
		m["lifetime_in_slots"] = lifetime
		m["num_timesteps_appeared_in"] = float64(distinctU64(slots))
		m["slot_density"] = ratioOrZero(totalTxs, lifetime)
	} else {
		m["first_slot_appeared_in"] = 0
		m["last_slot_appeared_in"] = 0
		m["lifetime_in_slots"] = 0
		m["num_timesteps_appeared_in"] = 0
		m["slot_density"] = 0
	}

	m["first_sent_slot"] = minOrZero(sentSlots)
	m["first_received_slot"] = minOrZero(receivedSlots)

	m.AddStatsStd("btc_transacted", allValues, true)
	m.AddStatsStd("btc_sent", sentValues, true)
	m.AddStatsStd("btc_received", receivedValues, true)
	m.AddStatsStd("fees", allFees, true)
	m.AddStatsStd("sol_sent", sentNative, true)
	m.AddStatsStd("sol_received", receivedNative, true)
	m.AddStatsStd("fees_as_share", feeShares, true)

	// The combined sequence collapses same-slot legs; the directional
	// sequences keep duplicates.
	m.AddStatsStd("slots_btwn_txs", Intervals(slots, true), true)
	m.AddStatsStd("slots_btwn_input_txs", Intervals(sentSlots, false), true)
	m.AddStatsStd("slots_btwn_output_txs", Intervals(receivedSlots, false), true)

	counts := make([]float64, 0, len(counterparties))
	multiple := 0.0
	for _, c := range counterparties {
		counts = append(counts, float64(c))
		if c > 1 {
			multiple++
		}
	}
	m["transacted_w_address_total"] = float64(len(counterparties))
	m["num_addr_transacted_multiple"] = multiple
	m.AddStatsStd("transacted_w_address", counts, false)

	m["avg_tx_complexity"] = Mean(complexities)
	m["burst_activity_score"] = burstScore(slots)
	m["round_number_ratio"] = roundNumberRatio(allValues)

	return m
}

func contextWeight(ctx models.TxContext) float64 {
	if w, ok := contextComplexity[ctx]; ok {
		return w
	}
	return 1.5
}

// burstScore is the fraction of gaps between consecutive distinct slots that
// are shorter than 10 slots. Fewer than 3 observations score 0.
func burstScore(slots []uint64) float64 {
	if len(slots) < 3 {
		return 0
	}
	intervals := Intervals(slots, true)
	if len(intervals) == 0 {
		return 0
	}
	short := 0
	for _, iv := range intervals {
		if iv < 10 {
			short++
		}
	}
	return float64(short) / float64(len(intervals))
}

// roundNumberRatio is the share of positive values with at most two decimal
// places when rendered at 8-digit precision.
func roundNumberRatio(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	round := 0
	for _, v := range values {
		if v > 0 && isRoundNumber(v) {
			round++
		}
	}
	return float64(round) / float64(len(values))
}

func isRoundNumber(v float64) bool {
	formatted := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.8f", v), "0"), ".")
	_, decimals, found := strings.Cut(formatted, ".")
	return !found || len(decimals) <= 2
}

func ratioOrZero(num, den float64) float64 {
	if den > 0 {
		return num / den
	}
	return 0
}
