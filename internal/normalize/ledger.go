package normalize

import (
	"context"
	"log/slog"

	"github.com/sigilum/chainrisk/internal/features"
	"github.com/sigilum/chainrisk/internal/logging"
	"github.com/sigilum/chainrisk/internal/models"
	"github.com/sigilum/chainrisk/internal/pricing"
)

// LedgerNormalizer prices ledger operations in USD and the reference coin.
// The ledger schema keeps both denominations side by side instead of folding
// everything into one common unit.
type LedgerNormalizer struct {
	converter *pricing.Converter
	logger    *slog.Logger
}

func NewLedgerNormalizer(converter *pricing.Converter, logger logging.Logger) *LedgerNormalizer {
	return &LedgerNormalizer{
		converter: converter,
		logger:    logger.WithComponent("ledger_normalizer"),
	}
}

// Normalize converts raw ledger operations into priced activity records.
// Operations without a timestamp are skipped. Mint and burn operations get
// the synthetic system counterparty. An unpriceable token contributes zero
// value but keeps the operation, so counts and timing features still see it.
func (n *LedgerNormalizer) Normalize(ctx context.Context, principal string, txs []models.LedgerTx) []features.LedgerActivity {
	out := make([]features.LedgerActivity, 0, len(txs))

	for _, tx := range txs {
		ts := tx.Time()
		if ts.IsZero() {
			continue
		}

		counterparty := models.LedgerSystemAccount
		if tx.Type == models.LedgerTransfer {
			if tx.IsOutgoing {
				counterparty = tx.To
			} else {
				counterparty = tx.From
			}
		}

		usdValue, icpValue := 0.0, 0.0
		usd, native, ok := n.converter.LedgerTokenPrices(ctx, tx.TokenSymbol, ts)
		if ok {
			usdValue = tx.Amount * usd
			icpValue = tx.Amount * native
		} else {
			n.logger.Debug("ledger token could not be valued",
				"token", tx.TokenSymbol, "block_index", tx.BlockIndex)
		}

		out = append(out, features.LedgerActivity{
			TokenSymbol:    tx.TokenSymbol,
			Type:           tx.Type,
			TimestampNanos: tx.TimestampNanos,
			Counterparty:   counterparty,
			IsOutgoing:     tx.IsOutgoing,
			IsIncoming:     tx.IsIncoming,
			USDValue:       usdValue,
			ICPValue:       icpValue,
		})
	}

	return out
}
