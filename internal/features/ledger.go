package features

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sigilum/chainrisk/internal/models"
)

// LedgerActivity is one priced ledger-chain operation, produced by the
// ledger normalizer. Unlike the other chains the ledger schema is valued in
// USD and the reference coin simultaneously.
type LedgerActivity struct {
	TokenSymbol    string
	Type           models.LedgerTxType
	TimestampNanos uint64
	Counterparty   string
	IsOutgoing     bool
	IsIncoming     bool
	USDValue       float64
	ICPValue       float64
}

var roundLandmarks = []float64{1, 5, 10, 25, 50, 100, 500, 1000}

// holdingThreshold and diversityThreshold separate dust from real balances.
var (
	holdingThreshold   = decimal.NewFromFloat(1e-6)
	diversityThreshold = decimal.NewFromFloat(1e-3)
)

// ComputeLedger builds the named feature map for the ledger-style chain from
// the address's token balances and priced operation history. The schema is
// portfolio-centric: balance and diversity features come first, then flow
// statistics, then per-token operation breakdowns.
func ComputeLedger(balances []models.TokenBalance, txs []LedgerActivity) FeatureMap {
	m := FeatureMap{}

	totalPortfolioUSD := 0.0
	tokensHeld := 0.0
	diversity := 0.0
	for _, b := range balances {
		if b.Amount.GreaterThan(holdingThreshold) {
			tokensHeld++
			totalPortfolioUSD += b.USDValue
		}
		if b.Amount.GreaterThan(diversityThreshold) {
			diversity++
		}
		switch b.Symbol {
		case "ICP":
			m["icp_balance"] = b.Amount.InexactFloat64()
		case "ckBTC":
			m["ckbtc_balance"] = b.Amount.InexactFloat64()
		case "ckETH":
			m["cketh_balance"] = b.Amount.InexactFloat64()
		case "ckUSDC":
			m["ckusdc_balance"] = b.Amount.InexactFloat64()
		}
	}
	m["num_tokens_held"] = tokensHeld
	m["portfolio_diversity_score"] = diversity
	m["total_portfolio_value_usd"] = totalPortfolioUSD

	m["total_transactions"] = float64(len(txs))
	ledgerZeroDefaults(m)
	if len(txs) == 0 {
		return m
	}

	sent := 0.0
	received := 0.0
	counterparties := map[string]struct{}{}
	tokenCounts := map[string]int{}
	breakdown := map[string]float64{}

	var allUSD, outgoingUSD, incomingUSD []float64
	var allICP, outgoingICP, incomingICP []float64
	var timestamps []uint64

	for _, tx := range txs {
		if tx.IsOutgoing {
			sent++
		}
		if tx.IsIncoming {
			received++
		}

		cp := tx.Counterparty
		if cp != models.LedgerSystemAccount && len(cp) > 20 {
			counterparties[cp] = struct{}{}
		}
		tokenCounts[tx.TokenSymbol]++
		breakdown[tx.TokenSymbol+"_"+string(tx.Type)]++

		allUSD = append(allUSD, tx.USDValue)
		allICP = append(allICP, tx.ICPValue)
		if tx.IsOutgoing {
			outgoingUSD = append(outgoingUSD, tx.USDValue)
			outgoingICP = append(outgoingICP, tx.ICPValue)
		}
		if tx.IsIncoming {
			incomingUSD = append(incomingUSD, tx.USDValue)
			incomingICP = append(incomingICP, tx.ICPValue)
		}
		timestamps = append(timestamps, tx.TimestampNanos)
	}

	m["sent_transactions"] = sent
	m["received_transactions"] = received
	m["unique_counterparties"] = float64(len(counterparties))
	m["tokens_used"] = float64(len(tokenCounts))
	m["tokens_actively_used"] = float64(len(tokenCounts))
	m["cross_token_user"] = boolFeature(len(tokenCounts) > 1)

	maxToken := 0
	for _, c := range tokenCounts {
		if c > maxToken {
			maxToken = c
		}
	}
	m["primary_token_dominance"] = float64(maxToken) / float64(len(txs))

	sentMean, _, sentTotal := sampleStats(outgoingUSD)
	receivedMean, _, receivedTotal := sampleStats(incomingUSD)
	avgUSD, stdUSD, _ := sampleStats(allUSD)
	m["total_value_sent_usd"] = sentTotal
	m["total_value_received_usd"] = receivedTotal
	m["net_flow_usd"] = receivedTotal - sentTotal
	m["avg_transaction_value_usd"] = avgUSD
	m["sent_amount_mean_usd"] = sentMean
	m["received_amount_mean_usd"] = receivedMean
	m["transaction_value_std_usd"] = stdUSD

	_, _, sentTotalICP := sampleStats(outgoingICP)
	_, _, receivedTotalICP := sampleStats(incomingICP)
	avgICP, _, _ := sampleStats(allICP)
	m["total_value_sent_icp"] = sentTotalICP
	m["total_value_received_icp"] = receivedTotalICP
	m["net_flow_icp"] = receivedTotalICP - sentTotalICP
	m["avg_transaction_value_icp"] = avgICP

	if len(timestamps) > 1 {
		sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
		spanNanos := float64(timestamps[len(timestamps)-1] - timestamps[0])
		spanDays := spanNanos / (1e9 * 86400)
		m["transaction_span_days"] = spanDays

		var hours []float64
		for i := 1; i < len(timestamps); i++ {
			hours = append(hours, float64(timestamps[i]-timestamps[i-1])/3.6e12)
		}
		m["avg_time_between_txs_hours"] = Mean(hours)
		if spanDays > 0 {
			m["transaction_frequency_score"] = float64(len(txs)) / spanDays
		}
	}

	if received > 0 {
		m["send_receive_ratio"] = sent / received
	} else {
		m["send_receive_ratio"] = sent
	}
	switch {
	case receivedTotal > 1e-6:
		m["value_sent_received_ratio_usd"] = sentTotal / receivedTotal
	case sentTotal > 0:
		m["value_sent_received_ratio_usd"] = 999.0
	default:
		m["value_sent_received_ratio_usd"] = 0
	}

	m["icp_transfer"] = breakdown["ICP_transfer"]
	m["ckbtc_transfer"] = breakdown["ckBTC_transfer"]
	m["ckbtc_mint"] = breakdown["ckBTC_mint"]
	m["cketh_transfer"] = breakdown["ckETH_transfer"]
	m["cketh_mint"] = breakdown["ckETH_mint"]
	m["cketh_burn"] = breakdown["ckETH_burn"]
	m["ckusdc_transfer"] = breakdown["ckUSDC_transfer"]
	m["ckusdc_mint"] = breakdown["ckUSDC_mint"]
	m["ckusdc_burn"] = breakdown["ckUSDC_burn"]

	mints := m["ckbtc_mint"] + m["cketh_mint"] + m["ckusdc_mint"]
	burns := m["cketh_burn"] + m["ckusdc_burn"]
	transfersCount := m["icp_transfer"] + m["ckbtc_transfer"] + m["cketh_transfer"] + m["ckusdc_transfer"]
	if transfersCount > 0 {
		m["mint_to_transfer_ratio"] = mints / transfersCount
	}
	m["defi_activity_score"] = (mints + burns) / float64(len(txs))

	m["round_number_transactions"] = countRoundAmounts(allUSD)
	m["high_value_transaction_ratio"] = shareAbove(allUSD, avgUSD*3)
	m["microtransaction_ratio"] = shareBelow(allUSD, 1.0)

	sanitizeLedger(m)
	return m
}

// LedgerUserTier buckets the address by portfolio size and behavior. The
// tier is reporting metadata, not a model input.
func LedgerUserTier(m FeatureMap, hasMint, hasBurn bool) string {
	crossToken := m["cross_token_user"] > 0
	totalTxs := m["total_transactions"]
	portfolio := m["total_portfolio_value_usd"]

	switch {
	case portfolio > 50000:
		if crossToken && m["defi_activity_score"] > 0.1 {
			return "defi_whale"
		}
		return "whale"
	case portfolio > 10000:
		if m["num_tokens_held"] >= 3 {
			return "diversified_investor"
		}
		if m["defi_activity_score"] > 0.2 {
			return "defi_power_user"
		}
		return "serious_investor"
	case portfolio > 1000:
		if crossToken && totalTxs > 20 {
			return "active_multi_token_user"
		}
		if totalTxs > 50 {
			return "high_frequency_trader"
		}
		return "regular_investor"
	case crossToken:
		if hasMint || hasBurn {
			return "defi_explorer"
		}
		return "multi_token_user"
	case totalTxs > 20:
		return "active_user"
	case totalTxs > 5:
		return "regular_user"
	case m["num_tokens_held"] > 1:
		return "portfolio_holder"
	case totalTxs > 0:
		return "light_user"
	default:
		return "inactive"
	}
}

// ledgerZeroDefaults pre-seeds every history-derived key so an address with
// no operations still projects a complete vector.
func ledgerZeroDefaults(m FeatureMap) {
	for _, key := range []string{
		"sent_transactions", "received_transactions", "unique_counterparties",
		"tokens_used", "tokens_actively_used", "cross_token_user",
		"primary_token_dominance", "total_value_sent_usd", "total_value_received_usd",
		"net_flow_usd", "avg_transaction_value_usd", "sent_amount_mean_usd",
		"received_amount_mean_usd", "transaction_value_std_usd",
		"total_value_sent_icp", "total_value_received_icp", "net_flow_icp",
		"avg_transaction_value_icp", "transaction_span_days",
		"avg_time_between_txs_hours", "transaction_frequency_score",
		"send_receive_ratio", "value_sent_received_ratio_usd",
		"mint_to_transfer_ratio", "defi_activity_score",
		"round_number_transactions", "high_value_transaction_ratio",
		"microtransaction_ratio", "icp_transfer", "ckbtc_transfer",
		"ckbtc_mint", "cketh_transfer", "cketh_mint", "cketh_burn",
		"ckusdc_transfer", "ckusdc_mint", "ckusdc_burn",
	} {
		m[key] = 0
	}
	for _, key := range []string{"icp_balance", "ckbtc_balance", "cketh_balance", "ckusdc_balance"} {
		if _, ok := m[key]; !ok {
			m[key] = 0
		}
	}
}

// sampleStats returns mean, sample standard deviation, and sum. A single
// observation has zero deviation.
func sampleStats(values []float64) (mean, std, sum float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))
	if len(values) == 1 {
		return mean, 0, sum
	}
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(values)-1)), sum
}

func countRoundAmounts(amounts []float64) float64 {
	count := 0.0
	for _, a := range amounts {
		if math.Abs(a-math.Round(a)) < 0.01 {
			count++
			continue
		}
		for _, landmark := range roundLandmarks {
			if a == landmark {
				count++
				break
			}
		}
	}
	return count
}

func shareAbove(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, v := range values {
		if v > threshold {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

func shareBelow(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, v := range values {
		if v < threshold {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// sanitizeLedger clamps the ratios that can degenerate on one-sided
// histories, mirroring the cleanup the training pipeline ran before export.
func sanitizeLedger(m FeatureMap) {
	if math.IsInf(m["send_receive_ratio"], 0) {
		m["send_receive_ratio"] = m["sent_transactions"]
	}
	if math.IsInf(m["value_sent_received_ratio_usd"], 0) {
		m["value_sent_received_ratio_usd"] = 999.0
	}
	for key, v := range m {
		if math.IsNaN(v) {
			m[key] = 0
		}
	}
}
