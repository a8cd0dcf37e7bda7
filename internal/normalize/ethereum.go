package normalize

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/sigilum/chainrisk/internal/logging"
	"github.com/sigilum/chainrisk/internal/models"
	"github.com/sigilum/chainrisk/internal/pricing"
)

const weiPerETH = 1e18

// EthereumNormalizer values merged Etherscan records in the common unit and
// flattens them into transfer legs for the target address.
type EthereumNormalizer struct {
	converter *pricing.Converter
	logger    *slog.Logger
}

func NewEthereumNormalizer(converter *pricing.Converter, logger logging.Logger) *EthereumNormalizer {
	return &EthereumNormalizer{
		converter: converter,
		logger:    logger.WithComponent("ethereum_normalizer"),
	}
}

// Normalize converts each record into legs from the address's perspective.
// Records without a timestamp are skipped. A record the address initiated
// yields a sent leg when value flowed, otherwise a fee-only leg so the gas
// spend still counts; a record paying the address yields a received leg. A
// token value that cannot be priced contributes zero, never an error.
func (n *EthereumNormalizer) Normalize(ctx context.Context, address string, txs []models.EtherscanTx) []models.NormalizedTransfer {
	address = strings.ToLower(address)
	var out []models.NormalizedTransfer

	for _, tx := range txs {
		ts := tx.Time()
		if ts.IsZero() {
			continue
		}

		from := strings.ToLower(tx.From)
		to := strings.ToLower(tx.To)

		valueETH := 0.0
		priceFailed := false
		if tx.IsTokenTransfer() {
			info := n.converter.EthereumTokenInfo(ctx, tx.ContractAddress)
			amount := tx.ValueFloat() / math.Pow10(info.Decimals)
			if amount > 0 {
				ratio, ok := n.converter.TokenETHRatio(ctx, tx.ContractAddress, ts)
				if ok {
					valueETH = amount * ratio
				} else {
					priceFailed = true
					n.logger.Debug("token could not be valued",
						"contract", tx.ContractAddress, "symbol", info.Symbol, "tx", tx.Hash)
				}
			}
		} else {
			valueETH = tx.ValueFloat() / weiPerETH
		}

		ethBTC := n.converter.EthBTCRatio(ctx, ts)
		valueBTC := valueETH * ethBTC
		feeBTC := tx.GasCostWei() / weiPerETH * ethBTC

		base := models.NormalizedTransfer{
			TxID:             tx.Hash,
			Timestamp:        ts,
			BlockOrdinal:     tx.BlockNumberUint(),
			ValueCommonUnit:  valueBTC,
			ValueNative:      valueETH,
			IsToken:          tx.IsTokenTransfer(),
			AssetID:          strings.ToLower(tx.ContractAddress),
			PriceFetchFailed: priceFailed,
		}

		emitted := false
		if from == address {
			leg := base
			leg.FeeCommonUnit = feeBTC
			if valueBTC > 0 {
				leg.Direction = models.DirectionSent
				leg.Counterparty = to
			} else {
				leg.Direction = models.DirectionFeeOnly
			}
			out = append(out, leg)
			emitted = true
		}
		if to == address && valueBTC > 0 {
			leg := base
			leg.Direction = models.DirectionReceived
			leg.Counterparty = from
			out = append(out, leg)
			emitted = true
		}
		if !emitted {
			leg := base
			leg.Direction = models.DirectionObserved
			out = append(out, leg)
		}
	}
	return out
}
