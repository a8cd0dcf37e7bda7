package normalize

import (
	"time"

	"github.com/sigilum/chainrisk/internal/models"
)

const satoshiPerBTC = 100_000_000.0

// NormalizeBitcoin flattens raw mempool transactions into transfer legs for
// the target address. Unconfirmed transactions are dropped. Each transaction
// produces a sent leg (sum of the address's inputs), a received leg (sum of
// the outputs paying the address), or an observed leg when neither side has
// value; the first leg of a transaction carries its fee and the full
// counterparty list, including blank addresses from non-standard outputs,
// which the training data also counted.
func NormalizeBitcoin(address string, txs []models.MempoolTx) []models.NormalizedTransfer {
	var out []models.NormalizedTransfer

	for _, tx := range txs {
		if !tx.Status.Confirmed || tx.Status.BlockHeight == 0 {
			continue
		}

		var sentSat, receivedSat int64
		isSender := false
		var counterparties []string
		for _, vin := range tx.Vin {
			if vin.Prevout == nil {
				continue
			}
			if vin.Prevout.Address == address {
				isSender = true
				sentSat += vin.Prevout.Value
			} else {
				counterparties = append(counterparties, vin.Prevout.Address)
			}
		}
		for _, vout := range tx.Vout {
			if vout.Address == address {
				receivedSat += vout.Value
			} else {
				counterparties = append(counterparties, vout.Address)
			}
		}

		base := models.NormalizedTransfer{
			TxID:         tx.TxID,
			Timestamp:    time.Unix(tx.Status.BlockTime, 0).UTC(),
			BlockOrdinal: tx.Status.BlockHeight,
		}

		var legs []models.NormalizedTransfer
		if isSender {
			leg := base
			leg.Direction = models.DirectionSent
			leg.ValueCommonUnit = float64(sentSat) / satoshiPerBTC
			leg.ValueNative = leg.ValueCommonUnit
			legs = append(legs, leg)
		}
		if receivedSat > 0 {
			leg := base
			leg.Direction = models.DirectionReceived
			leg.ValueCommonUnit = float64(receivedSat) / satoshiPerBTC
			leg.ValueNative = leg.ValueCommonUnit
			legs = append(legs, leg)
		}
		if len(legs) == 0 {
			leg := base
			leg.Direction = models.DirectionObserved
			legs = append(legs, leg)
		}

		legs[0].FeeCommonUnit = float64(tx.Fee) / satoshiPerBTC
		legs[0].FeeNative = legs[0].FeeCommonUnit
		legs[0].ExtraCounterparties = counterparties

		out = append(out, legs...)
	}
	return out
}
