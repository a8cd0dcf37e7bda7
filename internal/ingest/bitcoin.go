package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sigilum/chainrisk/internal/logging"
	"github.com/sigilum/chainrisk/internal/models"
)

const (
	// mempool.space serves 25 confirmed transactions per page.
	mempoolPageSize = 25
	mempoolMaxPages = 50

	bitcoinMaxTransactions = 500
)

// BitcoinIngestor pages through an address's confirmed history on a
// mempool.space compatible API. Pages are keyed by the last seen txid; the
// API has served this under two different paths over time, so a 404 on the
// query-parameter form retries the /txs/chain/{txid} form before concluding
// the history is exhausted.
type BitcoinIngestor struct {
	client  *indexerClient
	baseURL string
	logger  *slog.Logger
}

func NewBitcoinIngestor(baseURL string, timeout time.Duration, logger logging.Logger) *BitcoinIngestor {
	return &BitcoinIngestor{
		client:  newIndexerClient(timeout),
		baseURL: baseURL,
		logger:  logger.WithComponent("bitcoin_ingestor"),
	}
}

// FetchAll returns the address's confirmed transactions, oldest page last,
// capped at bitcoinMaxTransactions. A 404 on the first page means an unused
// address and yields an empty history. Transport failures after the first
// page return the partial history collected so far.
func (in *BitcoinIngestor) FetchAll(ctx context.Context, address string) ([]models.MempoolTx, error) {
	var all []models.MempoolTx
	seen := make(map[string]struct{})
	lastTxID := ""

	for page := 1; page <= mempoolMaxPages; page++ {
		if len(all) >= bitcoinMaxTransactions {
			in.logger.Warn("transaction limit reached", "address", address, "limit", bitcoinMaxTransactions)
			return all[:bitcoinMaxTransactions], nil
		}

		url := fmt.Sprintf("%s/address/%s/txs", in.baseURL, address)
		if lastTxID != "" {
			url += "?after_txid=" + lastTxID
		}

		var batch []models.MempoolTx
		err := in.client.getJSON(ctx, url, nil, &batch)
		if isNotFound(err) {
			if lastTxID == "" {
				in.logger.Debug("no history for address", "address", address)
				return nil, nil
			}
			altURL := fmt.Sprintf("%s/address/%s/txs/chain/%s", in.baseURL, address, lastTxID)
			err = in.client.getJSON(ctx, altURL, nil, &batch)
			if isNotFound(err) {
				return all, nil
			}
		}
		if errors.Is(err, errPayloadTooLarge) {
			in.logger.Warn("history too large, returning partial", "address", address, "fetched", len(all))
			return all, nil
		}
		if err != nil {
			if len(all) > 0 {
				in.logger.Warn("page fetch failed, returning partial", "address", address, "page", page, "error", err.Error())
				return all, nil
			}
			return nil, fmt.Errorf("failed to fetch transactions for %s: %w", address, err)
		}

		if len(batch) == 0 {
			break
		}

		added := 0
		for _, tx := range batch {
			if _, dup := seen[tx.TxID]; dup {
				continue
			}
			seen[tx.TxID] = struct{}{}
			all = append(all, tx)
			lastTxID = tx.TxID
			added++
		}
		// A page of pure duplicates means the cursor is not advancing.
		if added == 0 {
			in.logger.Debug("page contained only duplicates", "address", address, "page", page)
			break
		}
		in.logger.Debug("page fetched", "address", address, "page", page, "new", added)
	}

	if len(all) > bitcoinMaxTransactions {
		all = all[:bitcoinMaxTransactions]
	}
	return all, nil
}
