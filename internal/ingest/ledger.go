package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sigilum/chainrisk/internal/logging"
	"github.com/sigilum/chainrisk/internal/models"
)

// ledgerMaxTransactions caps how much history is pulled per token ledger.
const ledgerMaxTransactions = 2000

// defaultLedgerTokens are the ledgers scanned for a principal's activity.
var defaultLedgerTokens = []string{"ICP", "ckBTC", "ckETH", "ckUSDC"}

type ledgerTxResponse struct {
	Transactions []models.LedgerTx `json:"transactions"`
}

type ledgerBalanceResponse struct {
	Balances []models.TokenBalance `json:"balances"`
}

// LedgerIngestor queries a ledger index API for a principal's operations
// across every supported token ledger. The index returns records already
// resolved to the principal's perspective, so no cursor pagination is
// needed; each ledger is bounded by ledgerMaxTransactions.
type LedgerIngestor struct {
	client  *indexerClient
	baseURL string
	tokens  []string
	logger  *slog.Logger
}

func NewLedgerIngestor(baseURL string, timeout time.Duration, logger logging.Logger) *LedgerIngestor {
	return &LedgerIngestor{
		client:  newIndexerClient(timeout),
		baseURL: baseURL,
		tokens:  defaultLedgerTokens,
		logger:  logger.WithComponent("ledger_ingestor"),
	}
}

// FetchAll returns the principal's operations across all token ledgers,
// sorted by timestamp. A ledger with no history for the principal
// contributes nothing; a ledger that fails outright is skipped with a
// warning unless every ledger failed.
func (in *LedgerIngestor) FetchAll(ctx context.Context, principal string) ([]models.LedgerTx, error) {
	var all []models.LedgerTx
	failures := 0
	var lastErr error

	for _, token := range in.tokens {
		url := fmt.Sprintf("%s/accounts/%s/transactions?token=%s&limit=%d",
			in.baseURL, principal, token, ledgerMaxTransactions)

		var resp ledgerTxResponse
		err := in.client.getJSON(ctx, url, nil, &resp)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			failures++
			lastErr = err
			in.logger.Warn("ledger query failed", "principal", principal, "token", token, "error", err.Error())
			continue
		}
		txs := resp.Transactions
		if len(txs) > ledgerMaxTransactions {
			txs = txs[:ledgerMaxTransactions]
		}
		all = append(all, txs...)
	}

	if len(all) == 0 && failures == len(in.tokens) && lastErr != nil {
		return nil, fmt.Errorf("all ledger queries failed for %s: %w", principal, lastErr)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].TimestampNanos < all[j].TimestampNanos
	})
	return all, nil
}

// FetchBalances returns the principal's current holdings across all token
// ledgers. A missing account yields no balances, not an error.
func (in *LedgerIngestor) FetchBalances(ctx context.Context, principal string) ([]models.TokenBalance, error) {
	url := fmt.Sprintf("%s/accounts/%s/balances", in.baseURL, principal)

	var resp ledgerBalanceResponse
	err := in.client.getJSON(ctx, url, nil, &resp)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("balance query failed for %s: %w", principal, err)
	}
	return resp.Balances, nil
}
